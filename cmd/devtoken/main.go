// Command devtoken prints an identity token for local development against a
// ledgerd started without an identity provider.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/andymarkow/fundledger/internal/auth"
	"github.com/andymarkow/fundledger/internal/domain/accounts"
)

func main() {
	var (
		userID  string
		isAdmin bool
		secret  string
		ttl     time.Duration
	)

	flag.StringVar(&userID, "u", "", "user id to put in the sub claim")
	flag.BoolVar(&isAdmin, "admin", false, "grant the reviewer capability")
	flag.StringVar(&secret, "s", "secretkey", "HS256 secret [env:JWT_SECRET_KEY]")
	flag.DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if v, ok := os.LookupEnv("JWT_SECRET_KEY"); ok {
		secret = v
	}

	token, err := auth.NewJWTAuth([]byte(secret), auth.WithTokenTTL(ttl)).
		CreateJWTString(accounts.Identity{UserID: userID, IsAdmin: isAdmin})
	if err != nil {
		log.Fatalf("auth.CreateJWTString: %v", err)
	}

	fmt.Println(token)
}
