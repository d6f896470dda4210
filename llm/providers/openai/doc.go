// Package openai implements llm.Provider against the OpenAI chat completions
// endpoint (or any gateway that speaks the same wire format).
package openai
