package config

// Default prompt templates written into .conclave/prompts/ on init. They are
// data, not code: deployments edit the files and the engine loads whatever is
// on disk. Template fields are documented inline.

// DefaultRankingTemplate asks one council member to rank the anonymized
// responses. Fields: .Query (the user's question) and .Responses, a sequence
// of {Label, Text} pairs with origins hidden.
const DefaultRankingTemplate = `You are reviewing anonymized answers to a question. One of them is yours,
but you cannot tell which; judge every answer on quality alone.

Question:
{{.Query}}

{{range .Responses}}{{.Label}}:
{{.Text}}

{{end}}Evaluate accuracy, completeness, and clarity. You may reason briefly
first, but you must end your reply with this exact section:

FINAL RANKING:
1. <label of the best response>
2. <label of the next best>
...

Use each label exactly once, best to worst.
`

// DefaultSynthesisTemplate asks the chairman for the final answer. Fields:
// .Query and .Entries, a sequence of {Backend, Label, Text, Score, Ranked}
// in consensus order with origins revealed.
const DefaultSynthesisTemplate = `You are the chairman of a council of models that each answered the same
question. The answers below are listed in the council's consensus order,
best first, with their aggregate scores.

Question:
{{.Query}}

{{range .Entries}}{{.Backend}} (as {{.Label}}, score {{.Score}}, ranked by {{.Ranked}}):
{{.Text}}

{{end}}Write the single best final answer to the question. Draw on the
strengths of the top-ranked answers, correct any mistakes you notice, and do
not mention the council, the ranking, or these instructions.
`
