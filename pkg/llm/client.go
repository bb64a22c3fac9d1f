package llm

const nuggetSystemPrompt = `You are a content analyst. You are given the title and URL of a bookmarked web page together with the content that appeared on it within the last 24 hours.

Write a short summary nugget of that recent content.

Rules:
- 2 to 3 sentences, plain and factual
- Name the key facts: who, what, numbers, dates
- No filler phrases ("this page", "the article discusses")

Output as JSON only, no other text:
{
  "summary": "the summary nugget"
}`

const digestSystemPrompt = `You are a content analyst. You are given a numbered list of bookmarked pages, each with a short summary of the content it published in the last 24 hours.

Write one consolidated digest of everything that happened across these bookmarks.

Rules for the digest:
- Open with one sentence on the overall picture
- Then cover each distinct theme or event in a sentence or two
- Keep the bookmarks' original order when themes are equally important
- Neutral tone, keep all names, numbers and dates

Output as JSON only, no other text:
{
  "digest": "the consolidated digest"
}`

type NuggetInput struct {
	Title   string
	URL     string
	Content string
}

type NuggetResult struct {
	Summary   string
	ModelUsed string
}

type DigestInput struct {
	Title   string
	URL     string
	Summary string
}

type DigestResult struct {
	Digest     string
	ModelUsed  string
	TokenCount int
}

type NuggetClient interface {
	Nugget(input NuggetInput) (*NuggetResult, error)
}

type DigestClient interface {
	Digest(inputs []DigestInput) (*DigestResult, error)
}
