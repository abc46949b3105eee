package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"complaintmap/libs/admintoken"
)

// gen_token prints a bearer token for the admin complaints endpoint, signed
// the same way the API signs its fetches.
func main() {
	adminID := flag.String("admin-id", envOrDefault("COMPLAINTS_ADMIN_ID", "1"), "admin_id claim")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	secret := strings.TrimSpace(os.Getenv("COMPLAINTS_SIGNING_SECRET"))
	if secret == "" {
		fmt.Fprintln(os.Stderr, "COMPLAINTS_SIGNING_SECRET must be set")
		os.Exit(1)
	}

	signedToken, err := admintoken.Sign([]byte(secret), *adminID, time.Now(), *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(signedToken)
}

func envOrDefault(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
