package dialog

import "time"

// Profile is the dialog persona sent in the StartSession payload.
type Profile struct {
	BotName       string
	SystemRole    string
	SpeakingStyle string
	Extra         map[string]any
}

// ChatTTSRound is one {start, end} pair of content strings sent as a
// two-message ChatTTSText burst.
type ChatTTSRound struct {
	StartContent string
	EndContent   string
}

// Config holds everything about a session that the reference implementation
// hard-codes as literals; SPEC_FULL treats them as configurable per design
// note (c).
type Config struct {
	Profile Profile

	InitialGreeting  string
	FollowUpGreeting string

	SilenceTimeout     time.Duration
	ChatTTSRoundOne    ChatTTSRound
	ChatTTSRoundTwo    ChatTTSRound
	ChatTTSRoundGap    time.Duration
	ChatTTSProbability float64

	PCMDumpPath string
}

// DefaultConfig mirrors the reference session configuration, with a generic
// assistant persona in place of the original's hard-coded one. The TTS audio
// config (mono 24kHz PCM) is not part of Config: sendStartSession always
// sends it fixed.
func DefaultConfig() Config {
	return Config{
		Profile: Profile{
			BotName:       "Assistant",
			SystemRole:    "You are an upbeat, friendly voice assistant who speaks naturally and concisely.",
			SpeakingStyle: "Conversational, warm, moderate pace.",
			Extra: map[string]any{
				"strict_audit":   false,
				"audit_response": "Sorry, I can't help with that one — want to try a different topic?",
			},
		},
		InitialGreeting:  "Hi there! I'm your assistant — what can I help you with?",
		FollowUpGreeting: "Still there? I'm happy to keep chatting whenever you're ready.",

		SilenceTimeout: 30 * time.Second,
		ChatTTSRoundOne: ChatTTSRound{
			StartContent: "So, here's something you might find interesting —",
			EndContent:   "— anyway, let me know what you think.",
		},
		ChatTTSRoundTwo: ChatTTSRound{
			StartContent: "Actually, one more thing worth mentioning —",
			EndContent:   "— that's all for now.",
		},
		ChatTTSRoundGap:    10 * time.Second,
		ChatTTSProbability: 0.5,

		PCMDumpPath: "./output.pcm",
	}
}
