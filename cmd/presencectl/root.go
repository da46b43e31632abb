package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/danmuck/presencectl/internal/config"
	"github.com/danmuck/presencectl/internal/cookies"
	"github.com/danmuck/presencectl/internal/logging"
	"github.com/danmuck/presencectl/internal/service"
	"github.com/danmuck/presencectl/internal/transcript"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "presencectl.toml"

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "presencectl",
		Short:         "Keep a chat presence session authenticated and connected",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath, "path to presencectl.toml")

	root.AddCommand(
		newRunCmd(opts),
		newInitCmd(opts),
		newConfigCmd(opts),
		newTranscriptCmd(opts),
		newCookiesCmd(opts),
	)
	return root
}

// load returns defaults when the config file is absent.
func (o *rootOptions) load() (service.ServiceConfig, logging.Config, error) {
	if _, err := os.Stat(o.configPath); os.IsNotExist(err) {
		return service.DefaultServiceConfig(), logging.DefaultConfig(logging.ProfileRuntime), nil
	}
	return loadServiceConfig(o.configPath)
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Renew credentials and hold the chat session until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logCfg, err := opts.load()
			if err != nil {
				return err
			}
			logging.Configure(logCfg)
			svc, err := service.NewService(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return svc.Run()
		},
	}
}

func newInitCmd(opts *rootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config template",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteTemplate(opts.configPath, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", opts.configPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logCfg, err := opts.load()
			if err != nil {
				return err
			}
			out, err := config.Render(effectiveFile(cfg, logCfg))
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), out)
			return err
		},
	})
	return cmd
}

func newTranscriptCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcript",
		Short: "Inspect recorded connection transcripts",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List transcript files, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			paths, err := transcript.List(cfg.Session.TranscriptDir)
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show [file]",
		Short: "Print a transcript; defaults to the most recent",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				cfg, _, err := opts.load()
				if err != nil {
					return err
				}
				paths, err := transcript.List(cfg.Session.TranscriptDir)
				if err != nil {
					return err
				}
				if len(paths) == 0 {
					return fmt.Errorf("no transcripts in %s", cfg.Session.TranscriptDir)
				}
				path = paths[len(paths)-1]
			}
			return printTranscript(cmd.OutOrStdout(), path)
		},
	})
	return cmd
}

func printTranscript(w io.Writer, path string) error {
	header, entries, err := transcript.ReadFile(path)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "# %s %s %s (%d entries)\n", path, header.Type, header.Version, len(entries))
	for _, e := range entries {
		arrow := "<-"
		if e.Type == transcript.DirectionOutgoing {
			arrow = "->"
		}
		fmt.Fprintf(w, "%s %s %q\n", e.At().UTC().Format(time.RFC3339Nano), arrow, e.Data)
	}
	return nil
}

func newCookiesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cookies",
		Short: "Manage the stored cookie jar",
	}
	var from string
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Copy a cookie-string file into the configured backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			return importCookies(cmd.Context(), cmd.OutOrStdout(), from, cfg.Cookies)
		},
	}
	importCmd.Flags().StringVar(&from, "from", "./cookies.txt", "file holding `name=value; ...`")
	cmd.AddCommand(importCmd)
	return cmd
}

func importCookies(ctx context.Context, w io.Writer, from string, cfg service.CookieConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	jar, err := cookies.NewFileStore(from).Load(ctx)
	if err != nil {
		return err
	}
	store, closer, err := service.OpenCookieStore(ctx, cfg)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}
	if err := store.Save(ctx, jar); err != nil {
		return err
	}
	log.Info().Int("cookies", jar.Len()).Str("backend", string(service.NormalizeCookieBackend(cfg.Backend))).Msg("presencectl.cookies imported")
	fmt.Fprintf(w, "imported %d cookies\n", jar.Len())
	return nil
}
