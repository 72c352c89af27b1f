package runner

import (
	"time"

	"github.com/nstogner/desktopctl/pkg/domain"
)

// NikeNotifyScript opens nike.com in Firefox, navigates to the Air Force 1
// product page and signs up for a restock notification.
func NikeNotifyScript() Script {
	click := domain.ActionLeftClick
	return Script{
		Name: "nike-notify",
		Steps: []Step{
			// Let the freshly started desktop settle.
			Wait(time.Second),
			Locate("Find the firefox icon", click),
			Wait(time.Second),
			Locate("Find the search or enter address bar", click),
			Wait(time.Second),
			Type("nike.com"),
			Key("Return"),
			Wait(4 * time.Second),
			Locate("Find where it says Men", click),
			// Park the pointer so the hover menu closes.
			Move(domain.Point{X: 0, Y: 0}),
			Wait(2 * time.Second),
			Locate("Find where it says Shoes", click),
			Wait(2 * time.Second),
			Key("Page_Down"),
			Locate("Find where it says Nike Air Force 1'07", click),
			Wait(2 * time.Second),
			Locate("Find the Notify Me button", click),
			Wait(time.Second),
			Locate("Find the Email Address Box", click),
			Type("johndoe@example.com"),
			Wait(time.Second),
			Locate("Find the Submit button", click),
			Wait(time.Second),
		},
	}
}
