package agents

const systemPrompt = "You are a senior software engineer working inside an automated code generation pipeline. Follow the output instructions exactly."

const decomposePrompt = `**Task: Analyze and Decompose a Software Development Request**

Based on the user's request below, produce a structured specification a developer can start from.

**User Request:**
"%s"

**Output:**
Respond with a single JSON object with these keys:
- "language": (string) the primary programming language required
- "functionality_goal": (string) a one-sentence description of the core functionality
- "inputs": (array of strings) expected inputs with their types or formats
- "outputs": (array of strings) expected outputs
- "constraints": (array of strings) limitations and rules to follow
`

const generatePrompt = `**Task: Code Generation**

**Language:** %s
**Specification:** %s

Generate a complete, production-quality solution for the specification. Output only the
code for the requested language inside a single markdown code block.

Coding standards:
1. Handle errors and exceptions explicitly.
2. Validate all inputs.
3. Log key events. For Python, use the logging module.
4. Follow the language style guide and comment where needed.
5. Return clear status values or structured errors instead of ambiguous values.
`

const extractPrompt = "**Task: Isolate Code Block**\n\n**Input:**\n```\n%s\n```\n\nExtract and return only the content of the first code block. Omit all surrounding text, explanations and markdown formatting.\n"

const reviewPrompt = "**Task: Perform a Code Review**\n\n**Language:** %s\n\n**Code for Review:**\n```\n%s\n```\n\n" +
	`Assess correctness, readability, maintainability and security.

Provide a concise summary review. If the code is of high quality, a short confirmation such as
"Code is well-structured and meets all criteria." is enough. Otherwise list the issues as bullet points.
`

const classifyPrompt = `**Task: Analyze Code Review Sentiment**

**Review Text:**
"%s"

Decide whether the review approves or rejects the code.
Respond with a single JSON object: {"review_passed": boolean}.
- true: the review is positive (e.g. "looks good", "no issues", "well-written")
- false: the review is negative or raises concerns that need action
`

const testGenPrompt = "Write test code for the following %s code. Output only the test code, no explanation.\n\nCode:\n%s\n"
