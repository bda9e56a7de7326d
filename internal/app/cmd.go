package app

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/hitoshi/booktab/internal/config"
)

// Command はアプリケーションのサブコマンド名を表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandExport はライブラリをエクスポートファイルとして書き出すことを示す。
	CommandExport Command = "export"
	// CommandImport はエクスポートファイルからライブラリを置き換えることを示す。
	CommandImport Command = "import"
	// CommandBackup はバックアップを1回書き出すことを示す。
	CommandBackup Command = "backup"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// NewRootCommand はbooktabのルートコマンドを構築する。
// サブコマンドを省略した場合はserveとして動作する。
// wはログの出力先。コマンドの出力はcobraのOut/Errに書き出す。
func NewRootCommand(w io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "booktab",
		Short:         "個人向け読書トラッカー",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWithConfig(w, CommandServe, func(cfg *config.Config) error {
				return runServe(cmd.Context(), cfg)
			})
		},
	}

	root.AddCommand(
		&cobra.Command{
			Use:   string(CommandServe),
			Short: "APIサーバーを起動する",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runWithConfig(w, CommandServe, func(cfg *config.Config) error {
					return runServe(cmd.Context(), cfg)
				})
			},
		},
		&cobra.Command{
			Use:   string(CommandMigrate),
			Short: "データベースマイグレーションを適用する",
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				return runWithConfig(w, CommandMigrate, runMigrate)
			},
		},
		newExportCommand(w),
		newImportCommand(w),
		&cobra.Command{
			Use:   string(CommandBackup),
			Short: "バックアップを書き出し、保持期間を過ぎたものを削除する",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runWithConfig(w, CommandBackup, func(cfg *config.Config) error {
					return runBackup(cmd.Context(), cfg)
				})
			},
		},
		&cobra.Command{
			Use:   string(CommandHealthcheck),
			Short: "起動中のサーバーの/healthを確認する",
			Args:  cobra.NoArgs,
			// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
			RunE: func(_ *cobra.Command, _ []string) error {
				return runHealthcheck(healthcheckAddr())
			},
		},
	)

	return root
}

func newExportCommand(w io.Writer) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   string(CommandExport),
		Short: "ライブラリをJSONとして書き出す",
		Long: "ライブラリをエクスポート形式のJSONとして書き出す。\n" +
			"標準出力が端末の場合はbooktab-export-YYYY-MM-DD.jsonに保存し、" +
			"パイプやリダイレクトの場合は標準出力に書き出す。",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWithConfig(w, CommandExport, func(cfg *config.Config) error {
				return runExport(cmd.Context(), cfg, cmd.OutOrStdout(), output)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "出力先ファイル（-で標準出力）")
	return cmd
}

func newImportCommand(w io.Writer) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   string(CommandImport) + " <file>",
		Short: "エクスポートファイルでライブラリを置き換える",
		Long: "エクスポートファイルを検証し、確認のうえでライブラリ全体を置き換える。\n" +
			"置き換える前に現在のデータをバックアップとして書き出す。",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithConfig(w, CommandImport, func(cfg *config.Config) error {
				return runImport(cmd.Context(), cfg, args[0], yes, cmd.InOrStdin(), cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "確認せずに置き換える")
	return cmd
}
