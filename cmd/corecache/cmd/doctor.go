package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/standardbeagle/corecache/internal/config"
	"github.com/standardbeagle/corecache/internal/daemon"
	"github.com/standardbeagle/corecache/internal/output"
)

// checkResult is one diagnostic check's outcome.
type checkResult struct {
	Name     string `json:"name"`
	Pass     bool   `json:"pass"`
	Message  string `json:"message"`
	Required bool   `json:"required"`
}

func newDoctorCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that corecache can operate in this environment",
		Long: `Run diagnostics covering configuration validity, cache-directory
write access, and daemon socket-directory access.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func runDoctor(cmd *cobra.Command, jsonOutput bool) error {
	root := projectRoot()
	results := []checkResult{}

	cfg, cfgErr := config.Load(root)
	if cfgErr != nil {
		results = append(results, checkResult{
			Name: "config", Pass: false, Required: true,
			Message: cfgErr.Error(),
		})
	} else {
		results = append(results, checkResult{
			Name: "config", Pass: true, Required: true,
			Message: "configuration loaded and validated",
		})
		results = append(results, checkWritable("cache_dir", cfg.Persistence.CacheDir, true))
	}

	dcfg := daemon.DefaultConfig()
	results = append(results, checkWritable("daemon_dir", filepath.Dir(dcfg.SocketPath), false))

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	out := output.New(cmd.OutOrStdout())
	failed := false
	for _, r := range results {
		if r.Pass {
			out.Success(fmt.Sprintf("%-12s %s", r.Name, r.Message))
		} else if r.Required {
			out.Error(fmt.Sprintf("%-12s %s", r.Name, r.Message))
			failed = true
		} else {
			out.Warning(fmt.Sprintf("%-12s %s", r.Name, r.Message))
		}
	}

	if failed {
		return fmt.Errorf("system check failed")
	}
	return nil
}

// checkWritable creates dir if it is missing and verifies that a file can
// be written inside it. required only marks whether a failure fails the
// doctor run.
func checkWritable(name, dir string, required bool) checkResult {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return checkResult{Name: name, Pass: false, Required: required, Message: fmt.Sprintf("cannot create %s: %v", dir, err)}
	}

	probe := filepath.Join(dir, ".corecache-doctor-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return checkResult{Name: name, Pass: false, Required: required, Message: fmt.Sprintf("cannot write to %s: %v", dir, err)}
	}
	_ = os.Remove(probe)

	return checkResult{Name: name, Pass: true, Required: required, Message: fmt.Sprintf("%s is writable", dir)}
}
