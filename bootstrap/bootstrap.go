package bootstrap

import (
	"context"

	"github.com/bpcoder16/Chestnut/v2/appconfig"
	"github.com/bpcoder16/Chestnut/v2/bootstrap"
	"github.com/spf13/pflag"
)

func MustInit(ctx context.Context, config *appconfig.AppConfig) {
	bootstrap.MustInit(ctx, config)
}

// ParseFlags 解析命令行覆盖项，未识别的参数报错
func ParseFlags(name string, args []string) (Flags, error) {
	var flags Flags
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.StringVar(&flags.Policy, "policy", "", "policy file path, relative paths resolve against the conf directory")
	fs.StringVar(&flags.AuditFile, "audit-file", "", "JSON lines audit file, rotated daily")
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}
	return flags, nil
}
