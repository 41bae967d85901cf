package commands

import (
	"chatsync/internal/hub"
	"chatsync/internal/inspect"
	"chatsync/internal/models"
	"chatsync/internal/notify"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
)

func newRunCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the session and keep it in sync until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.close()

			a.client.Hub().Subscribe(hub.MessageReceived, func(n hub.Notification) {
				if message, ok := n.Payload.(models.Message); ok {
					a.sugar.Infof("Message in channel ID [%s] from [%s]: %s", message.ChannelID, message.Author.DisplayName, notify.Truncate(message.BodyHTML, 80))
				}
			})

			if a.cfg.Inspect.Enabled {
				server := inspect.New(a.sugar, a.client, a.client.Hub())
				go func() {
					if err := inspect.Serve(ctx, a.sugar, a.cfg.Inspect.Address, server.Router(a.registry)); err != nil {
						a.sugar.Errorf("Inspect server stopped: %v", err)
					}
				}()
			}

			if err := a.client.Start(ctx); err != nil {
				return err
			}

			<-ctx.Done()
			a.sugar.Info("Shutting down")
			return nil
		},
	}
}

func newLoginCommand(configPath *string) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store a credential and check it with the service",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = os.Getenv("CHATSYNC_TOKEN")
			}
			if token == "" {
				return errors.New("a token is required, pass --token or set CHATSYNC_TOKEN")
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.settings.SetToken(ctx, token); err != nil {
				return err
			}

			loopCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			a.client.RunLoop(loopCtx)

			if err := a.client.Verify(ctx); err != nil {
				return fmt.Errorf("credential rejected: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", a.client.Store().SelfID())
			return nil
		},
	}
	cmd.Flags().StringVarP(&token, "token", "t", "", "API token")
	return cmd
}

func newLogoutCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.client.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

type snapshot struct {
	SelfID   string           `yaml:"selfID"`
	Users    []models.User    `yaml:"users"`
	Channels []models.Channel `yaml:"channels"`
}

func newSnapshotCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Run one cold start and print the resulting model as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.client.Start(ctx); err != nil {
				return err
			}

			out, err := yaml.Marshal(snapshot{
				SelfID:   a.client.Store().SelfID(),
				Users:    a.client.Users(),
				Channels: a.client.Channels(),
			})
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func newConfigCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.close()

			masked := *a.cfg
			masked.Settings.Secret = mask(masked.Settings.Secret)
			masked.Settings.MySQL.Password = mask(masked.Settings.MySQL.Password)

			out, err := yaml.Marshal(masked)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}
