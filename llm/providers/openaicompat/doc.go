// Package openaicompat provides a shared base implementation for
// OpenAI-compatible chat completion APIs.
//
// DeepSeek (the Skeptic's default binding) embeds Provider and only overrides
// what differs: name, base URL, default model and endpoint path.
//
// Usage:
//
//	p := openaicompat.New(openaicompat.Config{
//	    ProviderName:  "deepseek",
//	    APIKey:        cfg.APIKey,
//	    BaseURL:       "https://api.deepseek.com",
//	    FallbackModel: "deepseek-chat",
//	    EndpointPath:  "/chat/completions",
//	}, logger)
package openaicompat
