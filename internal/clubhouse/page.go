package clubhouse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/example/teetime-scheduler/internal/domain/booking"
)

// Element ids and selectors of the Clubhouse Online member site.
const (
	selUsername    = "#p_lt_page_content_pageplaceholder_p_lt_zoneLeft_CHOLogin_LoginControl_ctl00_Login1_UserName"
	selPassword    = "#p_lt_page_content_pageplaceholder_p_lt_zoneLeft_CHOLogin_LoginControl_ctl00_Login1_Password"
	selLoginButton = "#p_lt_page_content_pageplaceholder_p_lt_zoneLeft_CHOLogin_LoginControl_ctl00_Login1_LoginButton"
	selTeeTimesNav = "#p_lt_header_3_cmsmenu_menuElem-006"
	selModules     = "#modulesContainer"
	selGuestSearch = "input[aria-label='Search for Guest'], input[placeholder*='Search for Guest']"
)

// card is one tee time card as read off the page.
type card struct {
	TimeOf         string `json:"timeof"`
	Hole           string `json:"hole"`
	SlotsAvailable string `json:"slots"`
	Class          string `json:"class"`
}

func dateSelector(d time.Time) string {
	return fmt.Sprintf("a.date-wrapper[data-date='%d'][data-month='%d'][data-year='%d']", d.Day(), int(d.Month()), d.Year())
}

// A handle names a card by its data attributes: "08:07:00|10".
func handleFor(c booking.Clock, tee int) string {
	return c.PortalString() + "|" + strconv.Itoa(tee)
}

func parseHandle(h string) (timeOf string, tee int, err error) {
	timeOf, teeStr, ok := strings.Cut(h, "|")
	if !ok {
		return "", 0, fmt.Errorf("malformed slot handle %q", h)
	}
	tee, err = strconv.Atoi(teeStr)
	if err != nil {
		return "", 0, fmt.Errorf("malformed slot handle %q", h)
	}
	if _, err := booking.ParseWallClock(timeOf); err != nil {
		return "", 0, fmt.Errorf("malformed slot handle %q", h)
	}
	return timeOf, tee, nil
}

func cardSelector(timeOf string, tee int) string {
	return fmt.Sprintf("div.tt.card[data-timeof='%s'][data-hole='%d']", timeOf, tee)
}

func (c card) available() int {
	if strings.Contains(c.Class, "unavailable") {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(c.SlotsAvailable))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// slotsFromCards converts page cards to slots. Cards with unreadable time or
// hole are dropped; cards with no room are kept with zero capacity.
func slotsFromCards(cards []card) ([]booking.Slot, int) {
	slots := make([]booking.Slot, 0, len(cards))
	dropped := 0
	for _, c := range cards {
		at, err := booking.ParseWallClock(c.TimeOf)
		if err != nil {
			dropped++
			continue
		}
		tee, err := strconv.Atoi(strings.TrimSpace(c.Hole))
		if err != nil {
			dropped++
			continue
		}
		slots = append(slots, booking.Slot{
			SlotKey:  booking.SlotKey{Time: at, Tee: tee},
			Capacity: c.available(),
			Handle:   handleFor(at, tee),
		})
	}
	return slots, dropped
}

var transportLabels = map[booking.Transport]string{
	booking.TransportCart:     "CART (CRT)",
	booking.TransportWalk:     "WALK (WLK)",
	booking.TransportWalkRide: "WALK/RIDE (W/R)",
}

func transportLabel(t booking.Transport) string {
	if l, ok := transportLabels[t]; ok {
		return l
	}
	return transportLabels[booking.TransportCart]
}

var (
	confirmedRe = regexp.MustCompile(`(?i)(reservation|booking|tee time)\s+(has been\s+)?(confirmed|submitted|successful)|successfully\s+(booked|reserved|submitted)`)
	declinedRe  = regexp.MustCompile(`(?i)(unable to (book|complete|reserve)|no longer available|(tee time|time|slot|reservation) is not available|exceeds the|limit (has been )?reached|could not be (booked|completed)|an error (has )?occurred|\berror:)`)
	referenceRe = regexp.MustCompile(`(?i)confirmation\s*(?:#|number|no\.?)\s*:?\s*([A-Z0-9-]{4,})`)
	clockRe     = regexp.MustCompile(`\b\d{1,2}:\d{2}(?:\s*[AP]M)?\b`)
)

// classifyConfirmation reads the text the portal shows after submit. Only an
// explicit confirmation counts; anything unrecognised is ambiguous.
func classifyConfirmation(text string) booking.Confirmation {
	text = strings.TrimSpace(text)
	switch {
	case confirmedRe.MatchString(text):
		c := booking.Confirmation{Kind: booking.Confirmed, Detail: firstLine(text)}
		if m := referenceRe.FindStringSubmatch(text); m != nil {
			c.Reference = m[1]
		}
		return c
	case declinedRe.MatchString(text):
		return booking.Confirmation{Kind: booking.Declined, Detail: firstLine(text)}
	default:
		return booking.Confirmation{Kind: booking.Ambiguous, Detail: "no confirmation shown"}
	}
}

// classifyAfterSubmit classifies only the lines that appeared after the
// click. Text already on the page before submit never decides the outcome.
func classifyAfterSubmit(before, after string) booking.Confirmation {
	seen := map[string]bool{}
	for _, l := range strings.Split(before, "\n") {
		seen[strings.TrimSpace(l)] = true
	}
	var fresh []string
	for _, l := range strings.Split(after, "\n") {
		l = strings.TrimSpace(l)
		if l != "" && !seen[l] {
			fresh = append(fresh, l)
		}
	}
	if len(fresh) == 0 {
		return booking.Confirmation{Kind: booking.Ambiguous, Detail: "page unchanged after submit"}
	}
	return classifyConfirmation(strings.Join(fresh, "\n"))
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	if len(line) > 160 {
		line = line[:160]
	}
	return line
}

// visibleTimes pulls up to n distinct clock strings out of page text.
func visibleTimes(text string, n int) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range clockRe.FindAllString(text, -1) {
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
		if len(out) == n {
			break
		}
	}
	return out
}

// Scripts evaluated in the page. Each returns a JSON-serialisable value.
const (
	jsLoggedIn = `(function(){
		var t = document.body ? document.body.innerText : "";
		return t.indexOf("Logout") >= 0 || location.href.indexOf("Member-Central") >= 0;
	})()`

	jsTeeSheetReady = `(function(){
		if (!document.querySelector("#modulesContainer")) return false;
		if (document.querySelector("div.tt.card")) return true;
		var t = document.body.innerText || "";
		return /no tee times/i.test(t);
	})()`

	jsCards = `Array.from(document.querySelectorAll("div.tt.card")).map(function(el){
		return {
			timeof: el.getAttribute("data-timeof") || "",
			hole: el.getAttribute("data-hole") || "",
			slots: el.getAttribute("data-slotsavailable") || "",
			class: el.getAttribute("class") || ""
		};
	})`

	jsBodyText = `document.body ? document.body.innerText : ""`

	// jsResultText reads visible dialogs, alerts and toasts, falling back to
	// the whole body when the portal shows none.
	jsResultText = `(function(){
		var sel = ".modal.show, .modal.in, [role=dialog], [role=alert], .alert, .toast, .swal2-popup";
		var parts = Array.from(document.querySelectorAll(sel)).filter(function(el){
			return el.getClientRects().length > 0;
		}).map(function(el){ return el.innerText || ""; });
		if (parts.length) return parts.join("\n");
		return document.body ? document.body.innerText : "";
	})()`
)

// jsOpenCard clicks the book button of a card. It returns "missing",
// "full" or "clicked".
func jsOpenCard(sel string) string {
	return fmt.Sprintf(`(function(){
		var el = document.querySelector(%q);
		if (!el) return "missing";
		var n = parseInt(el.getAttribute("data-slotsavailable") || "0", 10);
		if (n <= 0 || (el.getAttribute("class") || "").indexOf("unavailable") >= 0) return "full";
		el.scrollIntoView({block: "center"});
		var btn = el.querySelector("button.book-btn");
		(btn || el).click();
		return "clicked";
	})()`, sel)
}

// jsClickText clicks the nth element matching tag whose visible text or
// aria-label equals text. within scopes the search; empty means document.
// It returns the number of matches found.
func jsClickText(within, tag, text string, nth int) string {
	return fmt.Sprintf(`(function(){
		var root = %q ? document.querySelector(%q) : document;
		if (!root) return 0;
		var want = %q;
		var els = Array.from(root.querySelectorAll(%q)).filter(function(el){
			var label = (el.getAttribute("aria-label") || el.innerText || "").trim();
			return label === want || label.indexOf(want) === 0;
		});
		if (els.length > %d) { els[%d].scrollIntoView({block: "center"}); els[%d].click(); }
		return els.length;
	})()`, within, within, text, tag, nth, nth, nth)
}

// jsCountText counts elements matching tag with the given text.
func jsCountText(tag, text string) string {
	return fmt.Sprintf(`Array.from(document.querySelectorAll(%q)).filter(function(el){
		return (el.getAttribute("aria-label") || el.innerText || "").trim() === %q;
	}).length`, tag, text)
}
