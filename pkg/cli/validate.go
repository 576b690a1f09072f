package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/platinummonkey/tenantguard/pkg/rules"
)

// loadFlags locate a rule set on disk or in S3.
type loadFlags struct {
	path     string
	bucket   string
	key      string
	region   string
	endpoint string
}

func (l *loadFlags) register(flags *flag.FlagSet) {
	flags.StringVar(&l.path, "rules", "", "Path to the rules YAML file")
	flags.StringVar(&l.bucket, "s3-bucket", "", "Load rules from this S3 bucket instead of a file")
	flags.StringVar(&l.key, "s3-key", "rules.yaml", "Object key of the rules file")
	flags.StringVar(&l.region, "s3-region", "us-east-1", "S3 region")
	flags.StringVar(&l.endpoint, "s3-endpoint", "", "S3 compatible endpoint, e.g. MinIO")
}

func (l *loadFlags) load(env Env) (*rules.RuleSet, error) {
	if l.bucket == "" {
		if l.path == "" {
			return nil, errors.New("-rules or -s3-bucket is required")
		}
		env.Logger.WithField("path", l.path).Debug("loading rules file")
		return rules.LoadFile(l.path)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	cfg := rules.S3Config{
		Bucket:       l.bucket,
		Key:          l.key,
		Region:       l.region,
		Endpoint:     l.endpoint,
		UsePathStyle: l.endpoint != "",
	}
	client, err := rules.NewS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	env.Logger.WithField("bucket", l.bucket).WithField("key", l.key).Debug("loading rules from S3")
	src, err := rules.NewS3Source(ctx, client, cfg, nil, nil)
	if err != nil {
		return nil, err
	}
	return src.Current(), nil
}

func newValidateCommand(env Env) *Command {
	cmd := &Command{
		Name:        "validate",
		Description: "Parse a rules file and list its patterns",
		Flags:       flag.NewFlagSet("validate", flag.ContinueOnError),
	}
	var lf loadFlags
	lf.register(cmd.Flags)

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		rs, err := lf.load(env)
		if err != nil {
			return err
		}
		fmt.Fprintf(env.Out, "OK: %d rules\n", rs.Len())
		for i, p := range rs.Patterns() {
			fmt.Fprintf(env.Out, "  %2d  %s\n", i+1, p)
		}
		return nil
	}
	return cmd
}
