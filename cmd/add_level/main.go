package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/shopspring/decimal"
	"github.com/vitos/level_cross_trader/internal/domain"
	"github.com/vitos/level_cross_trader/internal/infrastructure/storage"
)

func main() {
	dbPath := flag.String("db", "bot.db", "sqlite database path")
	price := flag.String("price", "", "level price, e.g. 5000.25")
	tag := flag.String("tag", "", "annotation text, e.g. \"Support\" or \"LBL=GL|PTZDPHLine\"")
	list := flag.Bool("list", false, "list stored annotations and exit")
	del := flag.String("delete", "", "delete the annotation with this id")
	flag.Parse()

	store, err := storage.NewSQLiteStore(*dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	switch {
	case *list:
		anns, err := store.ListStoredAnnotations(ctx)
		if err != nil {
			log.Fatalf("Failed to list annotations: %v", err)
		}
		for _, a := range anns {
			fmt.Printf("%s  %-12s  %s\n", a.ID, a.Price.String(), a.Text)
		}
		return
	case *del != "":
		if err := store.DeleteAnnotation(ctx, *del); err != nil {
			log.Fatalf("Failed to delete annotation: %v", err)
		}
		fmt.Printf("Annotation %s deleted\n", *del)
		return
	}

	p, err := decimal.NewFromString(*price)
	if err != nil || !p.IsPositive() {
		log.Fatalf("Invalid -price %q", *price)
	}
	if *tag == "" {
		log.Fatal("-tag is required")
	}

	ann := &domain.StoredAnnotation{
		Price:  p,
		Text:   *tag,
		Source: "cli",
	}
	if err := store.SaveAnnotation(ctx, ann); err != nil {
		log.Fatalf("Failed to save annotation: %v", err)
	}

	fmt.Printf("Level added\n")
	fmt.Printf("ID:    %s\n", ann.ID)
	fmt.Printf("Price: %s\n", ann.Price.String())
	fmt.Printf("Tag:   %s\n", ann.Text)
}
