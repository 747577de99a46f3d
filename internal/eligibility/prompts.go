package eligibility

// classifyPrompt instructs the model to extract every out-of-pocket
// transaction as a separate line item and answer with a strict JSON
// array.
const classifyPrompt = "You are an HSA (Health Savings Account) eligibility expert. " +
	"Analyze the attached receipt or statement and determine which expenses are HSA-eligible.\n\n" +
	"A document may contain multiple transactions. Extract EACH out-of-pocket transaction as a " +
	"separate line item. Only include amounts the patient actually paid - ignore insurance " +
	"payments, adjustments, writedowns, and contractual allowances.\n\n" +
	"Respond with a JSON array of objects. Each object must contain exactly these fields:\n" +
	"- \"is_eligible\": boolean\n" +
	"- \"description\": string describing the item or service\n" +
	"- \"short_description\": one or two words for a filename, e.g. \"Medical\", \"Dental\", " +
	"\"Vision\", \"Pharmacy\", or a drug name like \"Tylenol\". Use underscores between words.\n" +
	"- \"category\": one of \"Medical\", \"Dental\", \"Vision\", \"Pharmacy\", or \"Other\"\n" +
	"- \"amount\": number or null if not visible\n" +
	"- \"provider\": string (provider or business name) or null if not visible\n" +
	"- \"service_date\": string in YYYY-MM-DD format for when the medical service was performed, " +
	"or null if not determinable\n" +
	"- \"payment_date\": string in YYYY-MM-DD format for when the payment was made, " +
	"or null if not determinable\n" +
	"- \"reasoning\": string explaining your determination\n\n" +
	"If the document contains only one transaction, still return a JSON array with one element.\n\n" +
	"Return ONLY valid raw JSON.\n" +
	"Do NOT wrap the response in code fences.\n" +
	"Do NOT use ```json or any Markdown.\n" +
	"Output must begin with \"[\" and end with \"]\".\n"
