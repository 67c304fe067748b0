package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"reader/internal/models"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func printShelves(w io.Writer, shelves []models.Shelf, stale func(models.Shelf) bool) {
	tw := newTable(w)
	fmt.Fprintln(tw, "KEY\tNAME\tBOOKS\tSORT\tSYNCED")
	for _, s := range shelves {
		synced := "never"
		if s.LastSynced != nil {
			synced = s.LastSynced.Local().Format("2006-01-02 15:04")
		}
		if stale(s) {
			synced += " (stale)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", s.Key, s.DisplayName, s.TotalCount, sortLabel(s), synced)
	}
	tw.Flush()
}

func printShelf(w io.Writer, shelf models.Shelf) {
	fmt.Fprintf(w, "%s: %d books, sorted by %s\n", shelf.DisplayName, shelf.TotalCount, sortLabel(shelf))
	if len(shelf.Books) == 0 {
		return
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "WORK\tTITLE\tAUTHOR\tPUBLISHED\tADDED")
	for _, b := range shelf.Books {
		added := ""
		if b.AddedDate != nil {
			added = b.AddedDate.Format("2006-01-02")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", b.WorkID, b.Title, b.FirstAuthor(), b.PublishDate, added)
	}
	tw.Flush()
}

func sortLabel(s models.Shelf) string {
	if s.SortAscending {
		return string(s.SortKey) + " asc"
	}
	return string(s.SortKey) + " desc"
}

func printLists(w io.Writer, lists []models.BookList) {
	tw := newTable(w)
	fmt.Fprintln(tw, "URL\tNAME\tSEEDS")
	for _, l := range lists {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", l.URL, l.Name, l.SeedCount)
	}
	tw.Flush()
}

func printItems(w io.Writer, items []models.DisplayItem) {
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tNAME\tDETAIL")
	for _, item := range items {
		d := models.Project(item)
		fmt.Fprintf(tw, "%s\t%s\t%s\n", d.ID, d.PrimaryText, d.SecondaryText)
	}
	tw.Flush()
}

func printLoans(w io.Writer, loans map[string]models.Loan) {
	if len(loans) == 0 {
		fmt.Fprintln(w, "No active loans")
		return
	}

	ids := make([]string, 0, len(loans))
	for id := range loans {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	tw := newTable(w)
	fmt.Fprintln(tw, "IDENTIFIER\tEDITION\tEXPIRES")
	for _, id := range ids {
		loan := loans[id]
		expiry := ""
		if loan.Expiry != nil {
			expiry = loan.Expiry.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", id, loan.EditionID, expiry)
	}
	tw.Flush()
}
