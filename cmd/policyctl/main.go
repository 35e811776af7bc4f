package main

import "github.com/noah-isme/activity-points-api/internal/cli"

func main() {
	cli.Execute()
}
