package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/chatmesh/core"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [paths...]",
	Short: "Index documents into the vector store",
	Long: `Loads, splits and embeds documents, then upserts the chunks into the
configured vector store. Without arguments every supported file under
rag.document_path is indexed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(true)
		defer cancel()

		mesh, err := openMesh(ctx)
		if err != nil {
			return err
		}
		defer mesh.Close()

		if !mesh.Retrieval().Enabled() {
			return core.NewConfigurationError("rag is disabled")
		}
		n, err := mesh.Ingest(ctx, args...)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "indexed %d chunks\n", n)
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Query the index and print matching passages",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(true)
		defer cancel()

		mesh, err := openMesh(ctx)
		if err != nil {
			return err
		}
		defer mesh.Close()

		k, _ := cmd.Flags().GetInt("top-k")
		threshold, _ := cmd.Flags().GetFloat64("threshold")
		if threshold < 0 {
			threshold = mesh.Config().RAG.SimilarityThreshold
		}

		query := args[0]
		for _, a := range args[1:] {
			query += " " + a
		}
		results, err := mesh.Retrieval().Search(ctx, query, k, threshold)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no matching passages")
			return nil
		}
		for i, r := range results {
			fmt.Fprintf(cmd.OutOrStdout(), "%d. [%.3f] %s\n%s\n\n", i+1, r.Score, r.Source(), r.Content)
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print index statistics as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := commandContext(true)
		defer cancel()

		mesh, err := openMesh(ctx)
		if err != nil {
			return err
		}
		defer mesh.Close()

		stats, err := mesh.Retrieval().Stats(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	},
}

var clearIndexCmd = &cobra.Command{
	Use:   "clear-index",
	Short: "Remove every chunk from the vector store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := commandContext(true)
		defer cancel()

		mesh, err := openMesh(ctx)
		if err != nil {
			return err
		}
		defer mesh.Close()

		if err := mesh.Retrieval().Clear(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "index cleared")
		return nil
	},
}
