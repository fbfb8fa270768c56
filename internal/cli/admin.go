package cli

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/fooddiary/pkg/diary"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "diary %s\n", diary.Version)
		},
	}
}

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the configuration and data directories",
		Long: `Create config.yaml with default settings (if missing) and open the
configured storage once so the data directory and store file exist.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDiary(cmd.Context(), func(s *session) error {
				cfg := s.diary.Config()
				result := map[string]string{
					"config":  filepath.Join(a.configDir, configFileExt),
					"dataDir": cfg.DataDir,
					"backend": cfg.Backend,
				}
				return a.output(cmd, result, func(w io.Writer) {
					fmt.Fprintf(w, "Config:  %s\n", result["config"])
					fmt.Fprintf(w, "Data:    %s (%s)\n", cfg.DataDir, cfg.Backend)
				})
			})
		},
	}
}

// storageReport is the output of the info command.
type storageReport struct {
	Backend string `json:"backend"`
	DataDir string `json:"dataDir"`
	Entries int    `json:"entries"`
	Keys    int    `json:"keys"`
	Bytes   int64  `json:"bytes"`
}

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show storage usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDiary(cmd.Context(), func(s *session) error {
				info, err := s.diary.StorageInfo()
				if err != nil {
					return err
				}
				repo, err := s.diary.Entries()
				if err != nil {
					return err
				}
				count, err := repo.Count()
				if err != nil {
					return err
				}
				cfg := s.diary.Config()
				report := storageReport{
					Backend: cfg.Backend,
					DataDir: cfg.DataDir,
					Entries: count,
					Keys:    info.Keys,
					Bytes:   info.Bytes,
				}
				return a.output(cmd, report, func(w io.Writer) {
					fmt.Fprintf(w, "Backend: %s\n", report.Backend)
					fmt.Fprintf(w, "Data:    %s\n", report.DataDir)
					fmt.Fprintf(w, "Entries: %s\n", humanize.Comma(int64(report.Entries)))
					fmt.Fprintf(w, "Keys:    %s\n", humanize.Comma(int64(report.Keys)))
					fmt.Fprintf(w, "Size:    ~%s\n", humanize.Bytes(uint64(report.Bytes)))
				})
			})
		},
	}
}

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export <file.jsonl>",
		Short: "Write every entry to a JSONL file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDiary(cmd.Context(), func(s *session) error {
				repo, err := s.diary.Entries()
				if err != nil {
					return err
				}
				n, err := repo.Export(args[0])
				if err != nil {
					return err
				}
				return a.output(cmd, map[string]any{"path": args[0], "exported": n}, func(w io.Writer) {
					fmt.Fprintf(w, "Exported %d %s to %s\n", n, plural(n, "entry", "entries"), args[0])
				})
			})
		},
	}
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.jsonl>",
		Short: "Merge entries from a JSONL file",
		Long: `Merge entries from a JSONL file. Entries whose ID already exists are
replaced; new entries are added on top. Malformed lines and invalid entries
are skipped and counted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDiary(cmd.Context(), func(s *session) error {
				repo, err := s.diary.Entries()
				if err != nil {
					return err
				}
				res, err := repo.Import(args[0])
				if err != nil {
					return err
				}
				return a.output(cmd, res, func(w io.Writer) {
					fmt.Fprintf(w, "Imported %s: %d added, %d replaced, %d skipped\n",
						args[0], res.Added, res.Replaced, res.Skipped)
				})
			})
		},
	}
}
