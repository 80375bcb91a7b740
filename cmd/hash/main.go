// Package main is a utility for generating bcrypt hashes of passwords and API
// keys. The server stores only bcrypt hashes — never the raw values — so this
// tool is used when manually seeding or verifying account records in the
// database without running the full server. The hash it prints can be inserted
// directly into the users table.
package main

import (
	"fmt"
	"log"
	"os"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatalf("usage: %s <secret>", os.Args[0])
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(os.Args[1]), 12)
	if err != nil {
		log.Fatalf("Failed to hash: %v", err)
	}
	fmt.Println(string(hash))
}
