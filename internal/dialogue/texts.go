package dialogue

import (
	"fmt"
	"time"

	"github.com/learnstations/stationbot/core/telegram/format"
	"github.com/learnstations/stationbot/internal/participant"
	"github.com/learnstations/stationbot/internal/stations"
)

const (
	textWelcome         = "Welcome to *Learning Stations*! I'm your learning assistant. So are you a mentor or a learner?"
	textAskPasscode     = "Please enter the passcode:"
	textAskName         = "Please enter your name:"
	textInvalidPasscode = "Invalid passcode ❌ Please try again."
	textInvalidEmail    = "That doesn't look like an email address. Please enter your email:"
	textEmptyName       = "Your name can't be empty. Please enter your name:"
	textLearnerDone     = "Awesome! Now you're all set to start learning. Which station are you gonna visit first?"
	textUnavailable     = "Our records are unreachable right now ⏳ Please try again in a moment."
	textSaveFailed      = "Couldn't save your registration ⏳ Please send it again in a moment."
	textNotMentor       = "Only registered *Mentors* 🧑‍🏫 can view visitor codes."
	textNoCode          = "No visitor code is available yet. Please try again in a moment."
	textNothingToClear  = "You have no data stored with us. Use /start to register."
	textCleared         = "Your data has been cleared 🧹 Use /start to register again."

	buttonMentor  = "Mentor"
	buttonLearner = "Learner"
	buttonBack    = "Go back"
	buttonRefresh = "Refresh Code"
)

func textAskEmail(name string) string {
	return fmt.Sprintf("Hi %s! Please enter your email:", format.Markdown(name))
}

func textCodeDisplay(station, code string, left time.Duration) string {
	secs := int(left.Round(time.Second) / time.Second)
	return fmt.Sprintf("Hey there *%s* mentor. Here's the visitor code for your station: `%s`\n"+
		"This code expires in *%d:%02d* minutes.",
		format.Markdown(stations.Title(station)), code, secs/60, secs%60)
}

// Profile renders the summary shown to an already registered user.
func Profile(p participant.Participant, total int) string {
	if p.IsMentor() {
		return fmt.Sprintf("You have already completed registration as a *Mentor* 🧑‍🏫\n\n"+
			"*Here are your details:*\n"+
			"_Name: %s_\n"+
			"_Station name: %s_\n\n"+
			"If you want to move to a different station, you can run /cleardata to clear "+
			"your current data and then rerun /start.",
			format.Markdown(p.Name), format.Markdown(stations.Title(p.Station)))
	}
	return fmt.Sprintf("You have already completed registration as a *Learner* 🧑‍🎓\n\n"+
		"*Here are your details:*\n"+
		"_Name: %s_\n"+
		"_Email: %s_\n"+
		"_No. of stations visited: %d/%d_\n\n"+
		"If you wish to change any of your details, you can run /cleardata "+
		"(clears all your data including your progress) and then rerun /start.",
		format.Markdown(p.Name), format.Markdown(p.Email), len(p.Visited), total)
}
