package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"reader/internal/models"
)

func (c *cli) shelvesCmd() *cobra.Command {
	var refresh, all bool
	cmd := &cobra.Command{
		Use:   "shelves",
		Short: "List reading-log shelves",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				shelves []models.Shelf
				err     error
			)
			if all {
				shelves, err = c.repo.GetShelves(cmd.Context(), refresh)
			} else {
				shelves, err = c.repo.GetVisibleShelves(cmd.Context(), refresh)
			}
			if err != nil {
				return err
			}
			printShelves(cmd.OutOrStdout(), shelves, c.repo.IsShelfStale)
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "fetch from Open Library instead of the cache")
	cmd.Flags().BoolVar(&all, "all", false, "include hidden shelves")
	return cmd
}

func (c *cli) shelfCmd() *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "shelf <key>",
		Short: "Show the books on one shelf",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			shelf, err := c.repo.GetShelf(cmd.Context(), args[0], refresh)
			if err != nil {
				return err
			}
			printShelf(cmd.OutOrStdout(), shelf)
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "fetch from Open Library instead of the cache")
	return cmd
}

func (c *cli) sortCmd() *cobra.Command {
	var desc bool
	cmd := &cobra.Command{
		Use:   "sort <key> <title|author|dateAdded|datePublished>",
		Short: "Change how a shelf is sorted",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			order, err := models.ParseSortKey(args[1])
			if err != nil {
				return err
			}
			shelf, err := c.repo.UpdateShelfSort(cmd.Context(), args[0], order, !desc)
			if err != nil {
				return err
			}
			printShelf(cmd.OutOrStdout(), shelf)
			return nil
		},
	}
	cmd.Flags().BoolVar(&desc, "desc", false, "sort in descending order")
	return cmd
}

func (c *cli) visibilityCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "visibility <key> <on|off>",
		Short:     "Show or hide a shelf",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var visible bool
			switch strings.ToLower(args[1]) {
			case "on", "show", "true":
				visible = true
			case "off", "hide", "false":
				visible = false
			default:
				return fmt.Errorf("visibility must be on or off, got %q", args[1])
			}

			shelf, err := c.repo.UpdateShelfVisibility(cmd.Context(), args[0], visible)
			if err != nil {
				return err
			}
			state := "hidden"
			if shelf.IsVisible {
				state = "visible"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", shelf.DisplayName, state)
			return nil
		},
	}
}

func (c *cli) moveCmd() *cobra.Command {
	var edition string
	cmd := &cobra.Command{
		Use:   "move <workId> <target>",
		Short: "Move a book to a shelf",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			book, _, ok := c.repo.FindCachedBook(cmd.Context(), args[0])
			if !ok {
				book = models.Book{WorkID: args[0]}
			}
			if edition != "" {
				book.EditionID = edition
			}

			if err := c.repo.MoveBookToShelf(cmd.Context(), book, args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Moved %s to %s\n", args[0], args[1])
			return nil
		},
	}
	cmd.Flags().StringVar(&edition, "edition", "", "edition OLID to log, e.g. OL7353617M")
	return cmd
}

func (c *cli) removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <workId> <shelf>",
		Short: "Take a book off a shelf",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			book, _, ok := c.repo.FindCachedBook(cmd.Context(), args[0])
			if !ok {
				book = models.Book{WorkID: args[0]}
			}
			if err := c.repo.RemoveBookFromShelf(cmd.Context(), book, args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from %s\n", args[0], args[1])
			return nil
		},
	}
}

func (c *cli) listsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lists",
		Short: "List your curated lists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lists, err := c.repo.GetBookLists(cmd.Context())
			if err != nil {
				return err
			}
			printLists(cmd.OutOrStdout(), lists)
			return nil
		},
	}
}

func (c *cli) listCmd() *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "list [url]",
		Short: "Show the books and authors of a list; defaults to the last one opened",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var listURL string
			if len(args) == 1 {
				listURL = args[0]
			} else {
				selected, err := c.repo.SelectedList(ctx)
				if err != nil {
					return err
				}
				if selected == "" {
					return fmt.Errorf("no list selected; pass a list URL")
				}
				listURL = selected
			}

			snap, err := c.repo.GetListSeeds(ctx, listURL, refresh)
			if err != nil {
				return err
			}
			if err := c.repo.SelectList(ctx, listURL); err != nil {
				return err
			}
			printItems(cmd.OutOrStdout(), snap.Items())
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "fetch from Open Library instead of the cache")
	return cmd
}

func (c *cli) loansCmd() *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "loans",
		Short: "Show active Internet Archive loans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loans, err := c.repo.GetUserLoans(cmd.Context(), refresh)
			if err != nil {
				return err
			}
			printLoans(cmd.OutOrStdout(), loans)
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "ignore the in-memory loan cache")
	return cmd
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Drop every cached shelf, list and loan; preferences are kept",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.repo.ClearCache(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Local cache cleared")
			return nil
		},
	}
}

func (c *cli) botCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram bot and health server until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.app.RunBot(cmd.Context())
		},
	}
}
