// Package logx configures ecsrelay's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller), or JSON lines
//     when running under Lambda where CloudWatch ingests stdout
//   - File output JSON-structured
//   - Level changes live across config hot-reloads
package logx
