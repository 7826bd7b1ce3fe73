package interview

// DefaultQuestions is the stock interview script. The questions do double
// duty: the recordings provide enough varied speech for voice cloning, and
// the transcripts ground the persona's system prompt. Deployments can
// override the script in config.
var DefaultQuestions = []string{
	"Please introduce yourself: your name, where you are from, and what you do.",
	"Describe a typical day in your life, from morning to evening.",
	"Tell me about a memory that always makes you smile.",
	"What do you care about most deeply, and why?",
	"How would your closest friends describe you in a few sentences?",
	"Tell me about a challenge you faced and how you got through it.",
	"What advice would you give someone who wants to follow in your footsteps?",
	"Is there anything else you would like people talking to you to know?",
}
