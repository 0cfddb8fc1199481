package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/learnstations/stationbot/core/telegram/format"
	"github.com/learnstations/stationbot/internal/participant"
	"github.com/learnstations/stationbot/internal/stations"
)

const (
	textVisitedUsage    = "Usage: /visited <VISITOR CODE>. Ask your mentor for the visitor code!"
	textInvalidCode     = "Invalid visitor code ❌ Please ask your mentor for a valid one!"
	textNotLearner      = "You need to be a *Learner* 🎓 to run this command!"
	textRegisterFirst   = "You need to register as a *Learner* 🎓 to use this command. Use /start to register first."
	textUnavailable     = "Our records are unreachable right now ⏳ Please try again in a moment."
	textUnknown         = "Sorry, I didn't get that 🤔 Use /help to see what I can do."
	textUnknownDocument = "I can't do anything with files, sorry. Use /help to see what I can do."
	textAdminOnly       = "This command is for organisers only."
	textNoCodes         = "Visitor codes have not been generated yet."
	textDownloadCaption = "Here's your certificate 🎓"
	textParticipantArg  = "Usage: %s <primary key>"
	textNoParticipant   = "No participant with primary key %d."
	textRegenNotDone    = "%s has visited %d of %d stations; no certificate yet."
	textRegenCaption    = "Regenerated certificate for *%s*"
)

func title(station string) string {
	return format.Markdown(stations.Title(station))
}

func textVisited(station string, remaining int) string {
	if remaining <= 0 {
		return fmt.Sprintf("Yaay! You've successfully visited the *%s* station 🥁", title(station))
	}
	noun := "stations"
	if remaining == 1 {
		noun = "station"
	}
	return fmt.Sprintf("Yaay! You've successfully visited the *%s* station 🥁 %d %s left..",
		title(station), remaining, noun)
}

func textAlreadyVisited(station string) string {
	return fmt.Sprintf("You've already visited the *%s* station 👀 Please visit a different station.", title(station))
}

func textNotFinished(remaining int) string {
	return fmt.Sprintf("You still have %d stations to visit before you can download your certificate.", remaining)
}

func textCodes(set []string, code func(string) string, left time.Duration, epoch uint64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Visitor codes* (epoch %d)\n\n", epoch)
	for _, st := range set {
		fmt.Fprintf(&b, "%s: `%s`\n", title(st), code(st))
	}
	secs := int(left.Round(time.Second) / time.Second)
	fmt.Fprintf(&b, "\nNext rotation in *%d:%02d*", secs/60, secs%60)
	return b.String()
}

func textParticipant(p participant.Participant, total int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Participant #%d*\n", p.PrimaryKey)
	fmt.Fprintf(&b, "Name: %s\n", format.Markdown(p.Name))
	fmt.Fprintf(&b, "User ID: `%d`\n", p.UserID)
	fmt.Fprintf(&b, "Role: %s\n", p.Role)
	if p.IsMentor() {
		fmt.Fprintf(&b, "Station: %s\n", title(p.Station))
		return b.String()
	}
	fmt.Fprintf(&b, "Email: %s\n", format.Markdown(p.Email))
	fmt.Fprintf(&b, "Visited: %d/%d", len(p.Visited), total)
	if len(p.Visited) > 0 {
		titles := make([]string, len(p.Visited))
		for i, st := range p.Visited {
			titles[i] = title(st)
		}
		fmt.Fprintf(&b, " (%s)", strings.Join(titles, ", "))
	}
	return b.String()
}
