package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/riaworks/aios-core-sub000/internal/formatter"
	"github.com/riaworks/aios-core-sub000/internal/squad"
)

var cacheCwd string

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the squad discovery cache",
	Long: `The squad layer caches discovered squad manifests for squad_cache.ttl
(default 60s). Squads added on disk stay invisible until the snapshot
expires or the cache is cleared.`,
}

var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the cached snapshot",
	Args:  cobra.NoArgs,
	RunE:  runCacheStatus,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the cached snapshot",
	Args:  cobra.NoArgs,
	RunE:  runCacheClear,
}

var cacheRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Rescan squads and rewrite the cache",
	Args:  cobra.NoArgs,
	RunE:  runCacheRefresh,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatusCmd, cacheClearCmd, cacheRefreshCmd)
	cacheCmd.PersistentFlags().StringVar(&cacheCwd, "cwd", "", "Project directory (default: current directory)")
}

// cacheStatus is the JSON view of the cache.
type cacheStatus struct {
	Path      string         `json:"path"`
	Present   bool           `json:"present"`
	Fresh     bool           `json:"fresh"`
	AgeMs     int64          `json:"age_ms,omitempty"`
	TTLMs     int64          `json:"ttl_ms"`
	Squads    map[string]int `json:"squads,omitempty"`
	SquadsDir string         `json:"squads_dir"`
}

func squadCache() (*squad.Cache, string, error) {
	cwd, err := workingDir(cacheCwd)
	if err != nil {
		return nil, "", err
	}
	c := squad.NewCache(cfg.SynapseRoot(cwd), cfg.CacheTTL())
	c.Logger = logger
	return c, cfg.SquadsRoot(cwd), nil
}

func runCacheStatus(cmd *cobra.Command, args []string) error {
	c, squadsDir, err := squadCache()
	if err != nil {
		return err
	}

	st := cacheStatus{Path: c.Path, TTLMs: c.TTL.Milliseconds(), SquadsDir: squadsDir}
	entry, hit := c.Load()
	if entry != nil {
		st.Present = true
		st.Fresh = hit
		st.AgeMs = c.Now().UnixMilli() - entry.Timestamp
		st.Squads = make(map[string]int, len(entry.Manifests))
		for _, name := range entry.Names() {
			if m := entry.Manifests[name]; m != nil {
				st.Squads[name] = len(m.Domains)
			}
		}
	}

	if GetOutput() == "json" {
		return writeJSON(cmd.OutOrStdout(), st)
	}
	return writeCacheStatus(cmd.OutOrStdout(), st, entry)
}

func writeCacheStatus(w io.Writer, st cacheStatus, entry *squad.Entry) error {
	fmt.Fprintf(w, "Cache:  %s\n", st.Path)
	fmt.Fprintf(w, "Squads: %s\n", st.SquadsDir)
	if !st.Present {
		fmt.Fprintln(w, "State:  empty (next prompt rescans)")
		return nil
	}
	state := "fresh"
	if !st.Fresh {
		state = "expired"
	}
	age := time.Duration(st.AgeMs) * time.Millisecond
	fmt.Fprintf(w, "State:  %s (age %s, ttl %s)\n\n", state, age.Round(time.Second), time.Duration(st.TTLMs)*time.Millisecond)

	tbl := formatter.NewTable(w, "SQUAD", "DOMAINS", "PATH")
	tbl.SetMaxWidth(2, 60)
	for _, name := range entry.Names() {
		tbl.AddRow(name, fmt.Sprint(st.Squads[name]), entry.Dir(name))
	}
	if tbl.Len() == 0 {
		fmt.Fprintln(w, "No squads discovered.")
		return nil
	}
	return tbl.Render()
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	c, _, err := squadCache()
	if err != nil {
		return err
	}
	if err := c.Clear(); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s\n", c.Path)
	return nil
}

func runCacheRefresh(cmd *cobra.Command, args []string) error {
	c, squadsDir, err := squadCache()
	if err != nil {
		return err
	}
	if err := c.Clear(); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	entry, _, err := c.Discover(cmd.Context(), squadsDir)
	if err != nil {
		return fmt.Errorf("scan squads: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Discovered %d squad(s) under %s\n", len(entry.Manifests), squadsDir)
	return nil
}
