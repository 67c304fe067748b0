package models

import "strings"

// DisplayItem is either a BookItem or an AuthorItem
type DisplayItem interface {
	isDisplayItem()
}

// BookItem wraps a Book for list rendering
type BookItem struct {
	Book Book
}

// AuthorItem wraps an Author for list rendering
type AuthorItem struct {
	Author Author
}

func (BookItem) isDisplayItem()   {}
func (AuthorItem) isDisplayItem() {}

// Display is the uniform projection used by front-ends
type Display struct {
	ID            string
	PrimaryText   string
	SecondaryText string
	CoverImageID  int
}

// Project resolves a DisplayItem into its Display projection
func Project(item DisplayItem) Display {
	switch v := item.(type) {
	case BookItem:
		id := v.Book.WorkID
		if id == "" {
			id = v.Book.EditionID
		}
		return Display{
			ID:            id,
			PrimaryText:   v.Book.Title,
			SecondaryText: strings.Join(v.Book.Authors, ", "),
			CoverImageID:  v.Book.CoverImageID,
		}
	case AuthorItem:
		return Display{
			ID:            v.Author.Key,
			PrimaryText:   v.Author.Name,
			SecondaryText: v.Author.BirthDate,
			CoverImageID:  v.Author.PhotoID,
		}
	default:
		return Display{}
	}
}
