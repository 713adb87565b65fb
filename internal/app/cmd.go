package app

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/hitoshi/lexcms/internal/auth"
	"github.com/hitoshi/lexcms/internal/model"
)

// Command はアプリケーションのサブコマンド名を表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。引数なしの場合も同じ。
	CommandServe Command = "serve"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandCreateUser はリモートIdPにユーザーを登録することを示す。
	CommandCreateUser Command = "create-user"
)

// newRootCommand はcobraのルートコマンドを構築する。
// wはログの出力先で、create-userの結果もここに書き込む。
func newRootCommand(w io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "lexcms",
		Short:         "Legal Update CMS backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		// サブコマンドなしの場合はserveとして起動する
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd, w)
		},
	}
	root.SetOut(w)
	root.SetErr(w)

	root.AddCommand(
		newServeCommand(w),
		newMigrateCommand(w),
		newHealthcheckCommand(),
		newCreateUserCommand(w),
	)
	return root
}

func newServeCommand(w io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   string(CommandServe),
		Short: "Start the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd, w)
		},
	}
}

func serve(cmd *cobra.Command, w io.Writer) error {
	cfg, err := Init(w)
	if err != nil {
		return err
	}
	return runServe(cmd.Context(), cfg)
}

func newMigrateCommand(w io.Writer) *cobra.Command {
	var (
		down  bool
		steps int
	)
	cmd := &cobra.Command{
		Use:   string(CommandMigrate),
		Short: "Apply or roll back database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := Init(w)
			if err != nil {
				return err
			}
			return runMigrate(cfg, down, steps)
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "roll back migrations instead of applying them")
	cmd.Flags().IntVar(&steps, "steps", 0, "number of migrations to roll back (0 = all)")
	return cmd
}

// newHealthcheckCommand は軽量サブコマンドのため、フル初期化をスキップする。
func newHealthcheckCommand() *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   string(CommandHealthcheck),
		Short: "Probe the local /health endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if target == "" {
				target = "http://localhost:" + healthcheckPort()
			}
			return runHealthcheck(target)
		},
	}
	cmd.Flags().StringVar(&target, "url", "", "base URL of the server (default http://localhost:$SERVER_PORT)")
	return cmd
}

func newCreateUserCommand(w io.Writer) *cobra.Command {
	var (
		in   auth.NewMember
		role string
	)
	cmd := &cobra.Command{
		Use:   string(CommandCreateUser),
		Short: "Create a user in the remote identity provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := Init(w)
			if err != nil {
				return err
			}
			in.Role = model.Role(role)
			return runCreateUser(cmd.Context(), cfg, cmd.OutOrStdout(), in)
		},
	}
	cmd.Flags().StringVar(&in.Email, "email", "", "email address")
	cmd.Flags().StringVar(&in.Name, "name", "", "display name")
	cmd.Flags().StringVar(&in.Password, "password", "", "initial password")
	cmd.Flags().StringVar(&role, "role", string(model.RoleAdmin), "role (admin or editor)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
