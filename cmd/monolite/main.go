// Seed program: opens a database file, creates a couple of collections
// with sample documents, and runs a few finds/updates against them.
// Run: go run ./cmd/monolite
// Then inspect: databases/demo.mono (the single data file).
package main

import (
	"fmt"
	"log"
	"os"

	"monolite/bsonvalue"
	"monolite/catalog"
	"monolite/database"
)

const dbPath = "databases/demo.mono"

func main() {
	if err := os.MkdirAll("databases", 0755); err != nil {
		log.Fatalf("mkdir: %v", err)
	}

	db, err := database.Open(dbPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	students, err := db.Collection("students")
	if err != nil {
		log.Fatalf("open students: %v", err)
	}
	if err := students.CreateIndex(catalog.IndexMeta{Name: "by_email", Keys: []string{"email"}, Unique: true}); err != nil {
		log.Fatalf("create index: %v", err)
	}

	fmt.Println("Inserting students...")
	_, err = students.Insert([]bsonvalue.Value{
		studentDoc("Alice", "alice@example.edu", 20),
		studentDoc("Bob", "bob@example.edu", 21),
		studentDoc("Carol", "carol@example.edu", 19),
	})
	if err != nil {
		log.Fatalf("insert students: %v", err)
	}

	courses, err := db.Collection("courses")
	if err != nil {
		log.Fatalf("open courses: %v", err)
	}
	fmt.Println("Inserting courses...")
	_, err = courses.Insert([]bsonvalue.Value{
		bsonvalue.DocumentOf([]bsonvalue.Field{
			{Name: "code", Value: bsonvalue.String("CS101")},
			{Name: "title", Value: bsonvalue.String("Intro to CS")},
		}),
		bsonvalue.DocumentOf([]bsonvalue.Field{
			{Name: "code", Value: bsonvalue.String("CS102")},
			{Name: "title", Value: bsonvalue.String("Data Structures")},
		}),
	})
	if err != nil {
		log.Fatalf("insert courses: %v", err)
	}

	fmt.Println("\n--- find students where age > 19 ---")
	matches, err := students.Find(bsonvalue.DocumentOf([]bsonvalue.Field{
		{Name: "age", Value: bsonvalue.DocumentOf([]bsonvalue.Field{{Name: "$gt", Value: bsonvalue.Int32(19)}})},
	}))
	if err != nil {
		log.Fatalf("find: %v", err)
	}
	for _, doc := range matches {
		name, _ := doc.Get("name")
		age, _ := doc.Get("age")
		fmt.Printf("  %s (age %d)\n", name.Str, age.Int32)
	}

	fmt.Println("\n--- update Bob's age ---")
	n, err := students.Update(
		bsonvalue.DocumentOf([]bsonvalue.Field{{Name: "name", Value: bsonvalue.String("Bob")}}),
		bsonvalue.DocumentOf([]bsonvalue.Field{{Name: "$inc", Value: bsonvalue.DocumentOf([]bsonvalue.Field{{Name: "age", Value: bsonvalue.Int32(1)}})}}),
		false,
	)
	if err != nil {
		log.Fatalf("update: %v", err)
	}
	fmt.Printf("  matched %d document(s)\n", n)

	fmt.Printf("\nDone. %d students, %d courses. Inspect: %s\n", students.Count(), courses.Count(), dbPath)
}

func studentDoc(name, email string, age int32) bsonvalue.Value {
	return bsonvalue.DocumentOf([]bsonvalue.Field{
		{Name: "name", Value: bsonvalue.String(name)},
		{Name: "email", Value: bsonvalue.String(email)},
		{Name: "age", Value: bsonvalue.Int32(age)},
	})
}
