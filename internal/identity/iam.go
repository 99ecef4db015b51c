package identity

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/iam"
)

// AliasLister is the slice of the IAM client used here.
type AliasLister interface {
	ListAccountAliases(ctx context.Context, in *iam.ListAccountAliasesInput, optFns ...func(*iam.Options)) (*iam.ListAccountAliasesOutput, error)
}

// IAM resolves the environment from the first IAM account alias.
type IAM struct {
	client AliasLister
	rules  []Rule
}

func NewIAM(client AliasLister, rules []Rule) *IAM {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &IAM{client: client, rules: rules}
}

// NewIAMFromEnv builds the IAM client from the default AWS credential chain.
func NewIAMFromEnv(ctx context.Context, region string, rules []Rule) (*IAM, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewIAM(iam.NewFromConfig(cfg), rules), nil
}

func (r *IAM) ResolveEnvironment(ctx context.Context) (Environment, error) {
	out, err := r.client.ListAccountAliases(ctx, &iam.ListAccountAliasesInput{MaxItems: aws.Int32(1)})
	if err != nil {
		return Environment{}, fmt.Errorf("list account aliases: %w", err)
	}
	if out == nil || len(out.AccountAliases) == 0 {
		return Environment{}, fmt.Errorf("%w: account has no alias", ErrUnknownEnvironment)
	}
	return Match(out.AccountAliases[0], r.rules)
}
