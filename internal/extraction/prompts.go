package extraction

// extractionPrompt instructs the model to return a strict JSON array of
// transactions. The value sign follows the canonical convention; in_out is
// the explicit direction tag the reconciler treats as authoritative.
const extractionPrompt = "You are an expert financial assistant. Extract expense and income details " +
	"from the provided text.\n\n" +
	"Task:\n" +
	"- Identify every clear financial transaction. Ignore summaries, totals and non-transactional text.\n" +
	"- Output STRICT JSON only (no comments, no trailing commas, no extra text).\n" +
	"- Output a JSON array of objects.\n\n" +
	"Each object must have these fields:\n" +
	"- \"date\": string, ISO format \"YYYY-MM-DD\", or null if no date can be determined\n" +
	"- \"description\": string, a brief label for the transaction\n" +
	"- \"value\": number (negative for expenses/outgoing, positive for income/incoming)\n" +
	"- \"in_out\": string, \"out\" for expenses and \"in\" for income\n\n" +
	"Rules:\n" +
	"- If the input contains no transaction data, return an empty array.\n" +
	"- Return ONLY valid raw JSON.\n" +
	"- Do NOT wrap the response in code fences.\n" +
	"- Do NOT use ```json or any Markdown.\n" +
	"- Output must begin with \"[\" and end with \"]\".\n\n" +
	"Text to process:\n"

// signConventionPrompt asks a single yes/no question about the whole sample.
// The answer applies uniformly to every transaction extracted from it.
const signConventionPrompt = "You are analyzing a financial document to determine its sign convention.\n\n" +
	"In the canonical convention, expenses/outgoing money are NEGATIVE numbers and " +
	"income/incoming money are POSITIVE numbers.\n\n" +
	"Look at the text below. If it uses the OPPOSITE convention (expenses written as " +
	"positive numbers, income as negative), answer YES. If it follows the canonical " +
	"convention, or you cannot tell, answer NO.\n\n" +
	"Answer with a single word: YES or NO. No other text.\n\n" +
	"Text to analyze:\n"
