package onboarding

const welcomeMessage = "👋 Welcome! I'm here to help you stay productive and motivated.\n\n" +
	"To give you the best experience I need access to some of your work tools. I'll guide you through:\n" +
	"• GitHub - for coding activity, issues and pull requests\n" +
	"• Google (Calendar & Gmail) - for meetings and emails\n" +
	"• YouTrack - for task management\n\n" +
	"You can skip any integration you don't want to set up now."

const githubPrompt = "First, let's set up GitHub.\n\n" +
	"Please send your GitHub personal access token. You can create one at https://github.com/settings/tokens\n" +
	"It needs the `repo` and `read:user` scopes.\n\n" +
	"Type your token or 'skip' to set it up later."

const googlePrompt = "Now let's set up Google for Calendar and Gmail.\n\n" +
	"Send your OAuth client id, client secret and refresh token separated by spaces:\n" +
	"`<client_id> <client_secret> <refresh_token>`\n\n" +
	"Type them or 'skip' to set it up later."

const youtrackPrompt = "Finally, let's set up YouTrack for task management.\n\n" +
	"Send your YouTrack URL and permanent token in this format:\n" +
	"`https://youtrack.example.com perm:your-token-here`\n\n" +
	"You can create a permanent token in your YouTrack profile settings. Type them or 'skip' to set it up later."

const completeMessage = "🎉 Thank you! Your setup is now complete.\n\n" +
	"I'm ready to help you with:\n" +
	"• Daily planning and task management\n" +
	"• Hourly check-ins to offer assistance\n" +
	"• Noticing when your activity drops and offering support\n" +
	"• Research, coding and communication tasks\n\n" +
	"I'll send you a welcome message with your meetings and tasks each weekday morning.\n\n" +
	"Is there anything specific you'd like help with right now?"
