package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/golang/geo/r2"
	"github.com/spf13/cobra"

	"github.com/tilescope/tilescope/backend-go/internal/annotation"
	"github.com/tilescope/tilescope/backend-go/internal/config"
	"github.com/tilescope/tilescope/backend-go/internal/store"
)

var (
	driver      string
	databaseURL string
	sqlitePath  string
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	rootCmd := &cobra.Command{
		Use:   "annotations",
		Short: "Manage stored image annotations",
	}

	rootCmd.PersistentFlags().StringVar(&driver, "driver", cfg.StoreDriver, "store driver (postgres or sqlite)")
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", cfg.DatabaseURL, "postgres connection url")
	rootCmd.PersistentFlags().StringVar(&sqlitePath, "db", cfg.SQLitePath, "sqlite database path")

	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(elementsCmd())
	rootCmd.AddCommand(sampleCmd())
	rootCmd.AddCommand(deleteCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func getStore(ctx context.Context) (store.Store, error) {
	return store.Open(ctx, driver, databaseURL, sqlitePath)
}

// saveDocuments creates one annotation per document on the item.
func saveDocuments(ctx context.Context, s store.Store, itemID string, docs []annotation.Document) error {
	for _, doc := range docs {
		info, err := s.CreateAnnotation(ctx, annotation.Info{ItemID: itemID, Name: doc.Name, Description: doc.Description})
		if err != nil {
			return fmt.Errorf("create %q: %w", doc.Name, err)
		}
		stored, err := s.AddElements(ctx, info.ID, doc.Elements)
		if err != nil {
			return fmt.Errorf("add elements to %q: %w", doc.Name, err)
		}
		fmt.Printf("Created %s %q with %d elements\n", info.ID, info.Name, len(stored))
	}
	return nil
}

func importCmd() *cobra.Command {
	var itemID string

	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import annotation documents from a JSON file (- for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := os.Stdin
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			docs, err := annotation.DecodeDocuments(in)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			s, err := getStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()
			return saveDocuments(ctx, s, itemID, docs)
		},
	}

	cmd.Flags().StringVar(&itemID, "item", "", "image item id")
	cmd.MarkFlagRequired("item")
	return cmd
}

func sampleCmd() *cobra.Command {
	var itemID string
	var sizeX, sizeY int

	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Store the sample annotation set for an image",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := getStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()
			return saveDocuments(ctx, s, itemID, annotation.SampleDocuments(sizeX, sizeY))
		},
	}

	cmd.Flags().StringVar(&itemID, "item", "", "image item id")
	cmd.Flags().IntVar(&sizeX, "width", 40000, "image width in pixels")
	cmd.Flags().IntVar(&sizeY, "height", 30000, "image height in pixels")
	cmd.MarkFlagRequired("item")
	return cmd
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [item]",
		Short: "List the annotations of an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := getStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			infos, err := s.ListAnnotations(ctx, args[0])
			if err != nil {
				return err
			}
			if len(infos) == 0 {
				fmt.Println("No annotations.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tCREATED")
			for _, info := range infos {
				fmt.Fprintf(w, "%s\t%s\t%s\n", info.ID, info.Name, info.Created.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}
}

func elementsCmd() *cobra.Command {
	var left, top, right, bottom, minSize float64
	var limit int

	cmd := &cobra.Command{
		Use:   "elements [annotation]",
		Short: "Query the elements of an annotation, largest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := getStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			req := annotation.PageRequest{Region: r2.EmptyRect(), MinimumSize: minSize, Limit: limit}
			if cmd.Flags().Changed("left") || cmd.Flags().Changed("right") {
				req.Region = r2.RectFromPoints(r2.Point{X: left, Y: top}, r2.Point{X: right, Y: bottom})
			}
			elements, err := s.QueryElements(ctx, args[0], req)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tSIZE\tLABEL")
			for _, el := range elements {
				label := ""
				if el.Label != nil {
					label = el.Label.Value
				}
				fmt.Fprintf(w, "%s\t%s\t%.0f\t%s\n", el.ID, el.Type, el.Size(), label)
			}
			return w.Flush()
		},
	}

	cmd.Flags().Float64Var(&left, "left", 0, "region left")
	cmd.Flags().Float64Var(&top, "top", 0, "region top")
	cmd.Flags().Float64Var(&right, "right", 0, "region right")
	cmd.Flags().Float64Var(&bottom, "bottom", 0, "region bottom")
	cmd.Flags().Float64Var(&minSize, "min-size", 0, "minimum element size")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum elements (0 = all)")
	return cmd
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [annotation]",
		Short: "Delete an annotation and its elements",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := getStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.DeleteAnnotation(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		},
	}
}
