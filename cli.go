package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/CUknot/roomchat/models"
	"github.com/CUknot/roomchat/repository"
)

var defaultCategories = []string{"Python", "Flask", "Django", "JavaScript", "C#", "Java", "C", "C++"}

// seedCategories inserts the named categories, or the default set when none
// are given. Names that already exist are skipped.
func seedCategories(ctx context.Context, store *repository.Store, names []string) (int, error) {
	if len(names) == 0 {
		names = defaultCategories
	}
	existing, err := store.ListCategories(ctx)
	if err != nil {
		return 0, err
	}
	seen := make(map[string]bool, len(existing))
	for _, c := range existing {
		seen[c.Name] = true
	}

	added := 0
	err = store.Transaction(ctx, func(tx *repository.Store) error {
		for _, name := range names {
			if seen[name] {
				continue
			}
			if err := tx.CreateCategory(ctx, &models.Category{Name: name}); err != nil {
				return err
			}
			seen[name] = true
			added++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// dropRoom deletes the room with the given id. A missing room is not an error.
func dropRoom(ctx context.Context, store *repository.Store, arg string) error {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid room id %q", arg)
	}
	if err := store.DeleteRoom(ctx, uint(id)); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Printf("Room %d does not exist", id)
			return nil
		}
		return err
	}
	log.Printf("Room %d deleted", id)
	return nil
}

// runCommand executes a maintenance command and reports whether args named one.
func runCommand(ctx context.Context, store *repository.Store, args []string) (bool, error) {
	if len(args) == 0 {
		return false, nil
	}
	switch args[0] {
	case "seed":
		added, err := seedCategories(ctx, store, args[1:])
		if err != nil {
			return true, err
		}
		log.Printf("%d categories added successfully.", added)
		return true, nil
	case "drop-room":
		if len(args) != 2 {
			return true, fmt.Errorf("usage: drop-room <id>")
		}
		return true, dropRoom(ctx, store, args[1])
	default:
		return true, fmt.Errorf("unknown command %q", args[0])
	}
}
