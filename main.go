package main

import (
	_ "github.com/thetakeaway/takeaway/src/admintools"
	_ "github.com/thetakeaway/takeaway/src/devs3"
	_ "github.com/thetakeaway/takeaway/src/migration"
	"github.com/thetakeaway/takeaway/src/website"
)

func main() {
	website.WebsiteCommand.Execute()
}
