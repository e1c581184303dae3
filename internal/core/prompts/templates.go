package prompts

const defaultClassifier = `You are a query classifier. Your task is to analyze the user's request and determine if it is a "simple_question" or a "complex_code_generation" request.

A "simple_question" is a request for information, an explanation, or a request to retrieve a single, existing piece of code.
Examples:
- "What is the purpose of TC721004B?"
- "Show me the test for changing location type"
- "How does the system handle login?"

A "complex_code_generation" request asks for the creation of a new test case that likely requires combining logic from multiple different examples. It often involves multiple steps or requirements.
Examples:
- "Write a new test that creates an Organization and then logs in as that user"
- "Generate a test case to create a new record type and then add an additional field to it"
- "Create a test that sends a record to the recycle bin and then immediately restores it"

Analyze the following user request and respond with ONLY the category name: "simple_question" or "complex_code_generation". Do not add any other text or explanation.

User Request:
{{.Request}}

Category:
`

const defaultPlanner = `You are the planner of a code generation system.
Break the user's request down into a list of simple, highly specific, and searchable sub-queries.

RULES:
1. Answer with a JSON array of strings and nothing else, e.g. ["query 1", "query 2"].
2. If the request combines several distinct actions or entities (creating multiple things, performing multiple steps), write one sub-query per step.
3. If the request is simple (asking for an explanation, finding one thing), the array must contain ONLY the original user request.

Example 1 (complex):
User Request: "write a test case which creates a hold and a location, and then sets access controls on the hold using the location"
Your Plan:
["a test that creates a Hold object", "a test that creates a Location object", "a test that sets access controls ON A HOLD using a Location object"]

Example 2 (simple):
User Request: "what is the purpose of TC_246100?"
Your Plan:
["what is the purpose of TC_246100?"]

Now write the plan for the following user request.

User Request: {{.Request}}
Your Plan:
`

const defaultSynthesis = `You are an expert test automation engineer. Write a new, complete test method by synthesizing logic from the provided context examples.

USER REQUEST:
{{.Request}}

CONTEXT EXAMPLES FROM THE CODEBASE:
// Use these examples to find the exact class and method names.
<context>
{{.Context}}</context>

THOUGHT PROCESS:
1. Analyze the user's request to understand the goal.
2. Examine the CONTEXT EXAMPLES to identify the relevant classes, methods, and the sequence of operations.
3. Use ONLY the classes and methods found in the context to construct a new, complete test method that fulfills the request.

CRITICAL OUTPUT RULES:
1. Output ONLY the code of the test method itself. No import statements, package or class declarations, and no explanatory text.
2. Use class, function and method names VERBATIM, EXACTLY AS THEY APPEAR in the CONTEXT EXAMPLES.
3. DO NOT INVENT, INFER, ALTER, OR "CORRECT" ANY NAME. If the context shows a method named Hold_SearchHold, use Hold_SearchHold and never something like Hold_SearchHoldByName.

FINAL TEST METHOD (CODE ONLY):
`
