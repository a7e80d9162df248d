package main

import "github.com/railwayapp/stevedore/cmd/stevedore"

func main() {
	stevedore.Execute()
}
