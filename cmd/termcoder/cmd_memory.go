package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"termcoder/internal/memory"
)

// =============================================================================
// MEMORY COMMANDS
// =============================================================================

var (
	memoryLimit     int
	memoryK         int
	memoryThreshold float64
	memoryCategory  string
	memoryYes       bool
)

// memoryCmd inspects and edits the semantic memory store
var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect and edit remembered preferences",
	Long: `Manage the semantic memory the assistant keeps about you.

Subcommands:
  list   - List stored memories
  search - Similarity search
  add    - Store a new memory
  delete - Remove a memory by id
  clear  - Remove every memory
  info   - Show backend and embedding details`,
	RunE: runMemoryList,
}

var memoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored memories",
	RunE:  runMemoryList,
}

var memorySearchCmd = &cobra.Command{
	Use:   "search <query...>",
	Short: "Search memories by similarity",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runMemorySearch,
}

var memoryAddCmd = &cobra.Command{
	Use:   "add <text...>",
	Short: "Store a new memory",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runMemoryAdd,
}

var memoryDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Remove a memory",
	Args:  cobra.ExactArgs(1),
	RunE:  runMemoryDelete,
}

var memoryClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every memory",
	RunE:  runMemoryClear,
}

var memoryInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show memory backend details",
	RunE:  runMemoryInfo,
}

func init() {
	memoryListCmd.Flags().IntVar(&memoryLimit, "limit", 0, "Maximum records to list (0 = all)")
	memorySearchCmd.Flags().IntVarP(&memoryK, "top", "k", 0, "Number of results (default from config)")
	memorySearchCmd.Flags().Float64Var(&memoryThreshold, "threshold", -2, "Minimum similarity (default from config)")
	memoryAddCmd.Flags().StringVar(&memoryCategory, "category", "", "Category metadata (Personal, Professional, Technical, ...)")
	memoryClearCmd.Flags().BoolVarP(&memoryYes, "yes", "y", false, "Do not ask for confirmation")

	memoryCmd.AddCommand(memoryListCmd, memorySearchCmd, memoryAddCmd, memoryDeleteCmd, memoryClearCmd, memoryInfoCmd)
}

// withMemory opens the app without agents and hands its memory service to fn.
func withMemory(cmd *cobra.Command, fn func(a *app) error) error {
	a, err := newApp(cmd.Context(), appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()
	if a.memory == nil {
		return fmt.Errorf("memory store unavailable: %w", a.memoryErr)
	}
	return fn(a)
}

func runMemoryList(cmd *cobra.Command, args []string) error {
	return withMemory(cmd, func(a *app) error {
		records, err := a.memory.List(cmd.Context(), memoryLimit)
		if err != nil {
			return fmt.Errorf("failed to list memories: %w", err)
		}
		if len(records) == 0 {
			fmt.Println("No memories stored.")
			return nil
		}
		fmt.Println("🧠 Memories")
		fmt.Println(strings.Repeat("─", 50))
		for _, r := range records {
			fmt.Printf("  %s  %s\n", r.ID, r.Text)
			if cat := r.Metadata["category"]; cat != "" {
				fmt.Printf("  %s  category: %s\n", strings.Repeat(" ", len(r.ID)), cat)
			}
		}
		fmt.Println(strings.Repeat("─", 50))
		fmt.Printf("Total: %d memories\n", len(records))
		return nil
	})
}

func runMemorySearch(cmd *cobra.Command, args []string) error {
	return withMemory(cmd, func(a *app) error {
		threshold := memoryThreshold
		if threshold < -1 {
			threshold = a.memory.Threshold()
		}
		records, err := a.memory.Search(cmd.Context(), strings.Join(args, " "), memoryK, threshold)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		fmt.Println(memory.FormatRecords(records))
		return nil
	})
}

func runMemoryAdd(cmd *cobra.Command, args []string) error {
	return withMemory(cmd, func(a *app) error {
		var meta map[string]string
		if memoryCategory != "" {
			meta = map[string]string{"category": memoryCategory}
		}
		ids, err := a.memory.Add(cmd.Context(), []string{strings.Join(args, " ")}, meta)
		if err != nil {
			return fmt.Errorf("failed to add memory: %w", err)
		}
		fmt.Printf("✅ Stored memory %s\n", ids[0])
		return nil
	})
}

func runMemoryDelete(cmd *cobra.Command, args []string) error {
	return withMemory(cmd, func(a *app) error {
		if err := a.memory.Delete(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("failed to delete memory: %w", err)
		}
		fmt.Printf("🗑️  Deleted memory %s\n", args[0])
		return nil
	})
}

func runMemoryClear(cmd *cobra.Command, args []string) error {
	return withMemory(cmd, func(a *app) error {
		if !memoryYes {
			fmt.Print("Remove every stored memory? [y/N] ")
			var answer string
			fmt.Scanln(&answer)
			if !isYes(answer) {
				fmt.Println("Aborted.")
				return nil
			}
		}
		if err := a.memory.Clear(cmd.Context()); err != nil {
			return fmt.Errorf("failed to clear memories: %w", err)
		}
		fmt.Println("✅ Memory cleared")
		return nil
	})
}

func runMemoryInfo(cmd *cobra.Command, args []string) error {
	return withMemory(cmd, func(a *app) error {
		info, err := a.memory.Info(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println("🧠 Memory Store")
		fmt.Println(strings.Repeat("─", 50))
		fmt.Printf("  Backend:    %s\n", info.Backend)
		fmt.Printf("  Embedding:  %s (%d dimensions)\n", info.Engine, info.Dimensions)
		fmt.Printf("  Records:    %d\n", info.Count)
		fmt.Printf("  Threshold:  %.2f\n", a.memory.Threshold())
		fmt.Printf("  Default k:  %d\n", a.memory.DefaultK())
		return nil
	})
}
