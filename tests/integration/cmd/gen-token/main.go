package main

import (
	"fmt"
	"os"

	integration "pulsehrtest"
)

func main() {
	userID := "integration-user"
	if len(os.Args) > 1 {
		userID = os.Args[1]
	}
	token, err := integration.TestToken(userID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
