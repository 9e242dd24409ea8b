package loadr

import (
	"github.com/brianvoe/gofakeit/v7"
)

// Shared lists for the demo shop schema and workload.

var Categories = []string{"books", "garden", "kitchen", "toys", "outdoor", "office", "audio"}

var OrderStatuses = []string{"PENDING", "PAID", "SHIPPED", "CANCELLED"}

// Usernames an attacker typically guesses in a brute-force run.
var GuessedUsers = []string{"postgres", "admin", "root", "dba", "backup", "replication"}

func pick(f *gofakeit.Faker, list []string) string {
	return list[f.Number(0, len(list)-1)]
}
