package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/intent-gate/intentgate/internal/adapter/outbound/simenv"
	"github.com/intent-gate/intentgate/internal/config"
	"github.com/intent-gate/intentgate/internal/domain/firewall"
	"github.com/intent-gate/intentgate/internal/domain/intent"
	"github.com/intent-gate/intentgate/internal/service"
)

var checkFlags struct {
	kind          string
	action        string
	component     string
	data          string
	mimeType      string
	categories    []string
	envFile       string
	callerUID     int
	callerPID     int
	receivingUID  int
	userID        int
	query         bool
	targetPackage string
	targetUID     int
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Evaluate a single dispatch against the rules",
	Long: `Load the configured rule directories and evaluate one dispatch,
described by flags, against them. The host environment (packages, uids,
signatures, permissions) comes from a simulated environment YAML file.

Examples:
  intentgate check --kind activity --action android.intent.action.VIEW \
      --component com.example/.Viewer --caller-uid 10007 --env env.yaml

  intentgate check --kind package --target-package com.example \
      --target-uid 10007 --caller-uid 10042 --env env.yaml

Prints "allow" or "deny"; exits 0 for allow, 2 for deny.`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkFlags.kind, "kind", "", "dispatch kind: activity|broadcast|service|provider|package")
	checkCmd.Flags().StringVar(&checkFlags.action, "action", "", "intent action")
	checkCmd.Flags().StringVar(&checkFlags.component, "component", "", "resolved component (pkg/.Cls)")
	checkCmd.Flags().StringVar(&checkFlags.data, "data", "", "intent data URI")
	checkCmd.Flags().StringVar(&checkFlags.mimeType, "type", "", "resolved MIME type")
	checkCmd.Flags().StringSliceVar(&checkFlags.categories, "category", nil, "intent categories")
	checkCmd.Flags().StringVar(&checkFlags.envFile, "env", "", "simulated environment YAML file")
	checkCmd.Flags().IntVar(&checkFlags.callerUID, "caller-uid", 0, "calling uid")
	checkCmd.Flags().IntVar(&checkFlags.callerPID, "caller-pid", -1, "calling pid")
	checkCmd.Flags().IntVar(&checkFlags.receivingUID, "receiving-uid", -1, "resolved target uid (defaults to the component's uid from --env)")
	checkCmd.Flags().IntVar(&checkFlags.userID, "user", 0, "user id")
	checkCmd.Flags().BoolVar(&checkFlags.query, "query", false, "use the query path instead of the enforcement path")
	checkCmd.Flags().StringVar(&checkFlags.targetPackage, "target-package", "", "target package (kind=package)")
	checkCmd.Flags().IntVar(&checkFlags.targetUID, "target-uid", -1, "target uid (kind=package)")
	_ = checkCmd.MarkFlagRequired("kind")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	kind, ok := intent.ParseKind(checkFlags.kind)
	if !ok {
		return fmt.Errorf("unknown kind %q", checkFlags.kind)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))

	provider := simenv.New(simenv.Environment{})
	if checkFlags.envFile != "" {
		provider, err = simenv.Load(checkFlags.envFile)
		if err != nil {
			return err
		}
	}

	env := &firewall.Env{
		Packages:    provider,
		Permissions: provider,
		Settings:    provider,
		Logger:      logger,
	}

	ctx := context.Background()
	rt, err := service.Bootstrap(ctx, env, provider, service.RuntimeOptions{
		WritableDir:  cfg.Rules.Dir,
		ReadOnlyDirs: cfg.Rules.SystemDirs,
	}, nil, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	allowed, err := evaluate(rt.Firewall, kind, provider)
	if err != nil {
		return err
	}

	if allowed {
		fmt.Fprintln(cmd.OutOrStdout(), "allow")
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), "deny")
	os.Exit(2)
	return nil
}

func evaluate(fw *service.Firewall, kind intent.Kind, provider *simenv.Provider) (bool, error) {
	if kind == intent.KindPackage {
		if checkFlags.targetPackage == "" {
			return false, fmt.Errorf("--target-package is required for kind=package")
		}
		targetUID := checkFlags.targetUID
		if targetUID < 0 {
			targetUID = provider.UIDForPackage(checkFlags.targetPackage)
		}
		return fw.CheckQueryPackage(targetUID, checkFlags.targetPackage,
			checkFlags.callerUID, checkFlags.userID), nil
	}

	var component *intent.ComponentName
	if checkFlags.component != "" {
		component = intent.UnflattenFromString(checkFlags.component)
		if component == nil {
			return false, fmt.Errorf("invalid component %q", checkFlags.component)
		}
	}

	in := intent.New(checkFlags.action, checkFlags.data, checkFlags.mimeType).
		WithCategories(checkFlags.categories...).
		WithComponent(component)

	receivingUID := checkFlags.receivingUID
	if receivingUID < 0 && component != nil {
		receivingUID = provider.UIDForPackage(component.Package)
	}

	callerUID, callerPID := checkFlags.callerUID, checkFlags.callerPID
	resolvedType, userID := checkFlags.mimeType, checkFlags.userID

	if checkFlags.query {
		switch kind {
		case intent.KindActivity:
			return fw.CheckQueryActivity(component, in, callerUID, callerPID, resolvedType, receivingUID, userID), nil
		case intent.KindService:
			return fw.CheckQueryService(component, in, callerUID, callerPID, resolvedType, receivingUID, userID), nil
		case intent.KindBroadcast:
			return fw.CheckQueryReceiver(component, in, callerUID, callerPID, resolvedType, receivingUID, userID), nil
		case intent.KindProvider:
			return fw.CheckQueryProvider(component, in, callerUID, callerPID, resolvedType, receivingUID, userID), nil
		}
	}

	switch kind {
	case intent.KindActivity:
		return fw.CheckStartActivity(in, callerUID, callerPID, resolvedType, receivingUID, userID), nil
	case intent.KindService:
		return fw.CheckService(component, in, callerUID, callerPID, resolvedType, receivingUID, userID), nil
	case intent.KindBroadcast:
		return fw.CheckBroadcast(in, callerUID, callerPID, resolvedType, receivingUID, userID), nil
	case intent.KindProvider:
		return fw.CheckProvider(component, in, callerUID, callerPID, resolvedType, receivingUID, userID), nil
	}
	return false, fmt.Errorf("unsupported kind %q", kind)
}
