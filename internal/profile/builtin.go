package profile

import "time"

// builtins is the static provider table. Adding a provider means adding
// one entry here (plus, rarely, a new auth or envelope variant).
var builtins = []Profile{
	{
		ID:           "openai",
		BaseURL:      "https://api.openai.com/v1",
		ChatPath:     "/chat/completions",
		DefaultModel: "gpt-4o-mini",
		Auth:         AuthBearer{EnvVar: "OPENAI_API_KEY"},
		Envelope:     EnvelopeSpec{Kind: OpenAIChatArray},
		Mode: CompletionMode{
			Kind:     StreamingChunks,
			Framing:  FramingSSE,
			DoneData: "[DONE]",
		},
		Response: ResponseSpec{
			TextPath:  "choices.0.message.content",
			DeltaPath: "choices.0.delta.content",
		},
	},
	{
		ID:           "claude",
		BaseURL:      "https://api.anthropic.com/v1",
		ChatPath:     "/messages",
		DefaultModel: "claude-3-5-sonnet-20241022",
		Auth:         AuthBearer{EnvVar: "CLAUDE_API_KEY", Header: "x-api-key"},
		Envelope:     EnvelopeSpec{Kind: OpenAIChatArray, SystemTop: true},
		Mode: CompletionMode{
			Kind:    StreamingChunks,
			Framing: FramingSSE,
		},
		Response: ResponseSpec{
			TextPath:  "content.0.text",
			DeltaPath: "delta.text",
		},
		ExtraHeaders: map[string]string{"anthropic-version": "2023-06-01"},
		// The messages API rejects bodies without max_tokens.
		ExtraBody: map[string]any{"max_tokens": 4096},
	},
	{
		ID:           "gemini",
		BaseURL:      "https://generativelanguage.googleapis.com/v1beta",
		ChatPath:     "/models/{model}:generateContent",
		StreamPath:   "/models/{model}:streamGenerateContent?alt=sse",
		DefaultModel: "gemini-1.5-flash",
		Auth:         AuthQueryKey{EnvVar: "GEMINI_API_KEY", Param: "key"},
		Envelope: EnvelopeSpec{
			Kind:              GeminiPartsArray,
			SystemInstruction: true,
			OmitModel:         true,
			OmitStreamFlag:    true,
		},
		Mode: CompletionMode{
			Kind:    StreamingChunks,
			Framing: FramingSSE,
		},
		Response: ResponseSpec{
			TextPath:  "candidates.0.content.parts.0.text",
			DeltaPath: "candidates.0.content.parts.0.text",
		},
	},
	{
		ID:           "cohere",
		BaseURL:      "https://api.cohere.ai/v1",
		ChatPath:     "/chat",
		DefaultModel: "command-r",
		Auth:         AuthBearer{EnvVar: "COHERE_API_KEY"},
		Envelope:     EnvelopeSpec{Kind: CohereSingleMessage},
		Mode: CompletionMode{
			Kind:    StreamingChunks,
			Framing: FramingJSONLines,
		},
		Response: ResponseSpec{
			TextPath:  "text",
			DeltaPath: "text",
		},
	},
	{
		ID:           "cloudflare",
		BaseURL:      "https://api.cloudflare.com/client/v4/accounts/{account_id}/ai/run",
		ChatPath:     "/{model}",
		DefaultModel: "@cf/meta/llama-3.1-8b-instruct",
		Auth:         AuthBearer{EnvVar: "CLOUDFLARE_API_KEY"},
		Envelope:     EnvelopeSpec{Kind: OpenAIChatArray, OmitModel: true},
		Mode: CompletionMode{
			Kind:     StreamingChunks,
			Framing:  FramingSSE,
			DoneData: "[DONE]",
		},
		Response: ResponseSpec{
			TextPath:  "result.response",
			DeltaPath: "response",
		},
		Vars: []URLVar{{Name: "account_id", EnvVar: "CLOUDFLARE_ACCOUNT_ID"}},
	},
	{
		ID:           "replicate",
		BaseURL:      "https://api.replicate.com/v1",
		ChatPath:     "/models/{model}/predictions",
		DefaultModel: "meta/meta-llama-3-8b-instruct",
		Auth:         AuthBearer{EnvVar: "REPLICATE_API_KEY"},
		Envelope: EnvelopeSpec{
			Kind:        RawPromptString,
			PromptField: "prompt",
			InputWrap:   true,
			OmitModel:   true,
		},
		Mode: CompletionMode{
			Kind:      AsyncJobPoll,
			Framing:   FramingSSE,
			DoneEvent: "done",
			Poll: &PollSpec{
				Interval:      time.Second,
				JobIDPath:     "id",
				StatusPath:    "status",
				SucceedValue:  "succeeded",
				FailValue:     "failed",
				ResultURLPath: "urls.get",
				StreamURLPath: "urls.stream",
				OutputPath:    "output",
			},
		},
		// Replicate stream events carry the delta as plain text data.
		Response: ResponseSpec{DeltaPath: ""},
	},
	{
		ID:           "ernie",
		BaseURL:      "https://aip.baidubce.com/rpc/2.0/ai_custom/v1/wenxinworkshop/chat",
		ChatPath:     "/{model}",
		DefaultModel: "eb-instant",
		Auth:         AuthTokenExchange{Source: "ernie", QueryParam: "access_token"},
		Envelope: EnvelopeSpec{
			Kind:      OpenAIChatArray,
			SystemTop: true,
			OmitModel: true,
		},
		Mode: CompletionMode{
			Kind:    StreamingChunks,
			Framing: FramingSSE,
		},
		Response: ResponseSpec{
			TextPath:  "result",
			DeltaPath: "result",
		},
	},
	{
		// DashScope's OpenAI-compatible mode; the native schema nests
		// messages under "input" and is not one of the envelope kinds.
		ID:           "qianwen",
		BaseURL:      "https://dashscope.aliyuncs.com/compatible-mode/v1",
		ChatPath:     "/chat/completions",
		DefaultModel: "qwen-turbo",
		Auth:         AuthBearer{EnvVar: "QIANWEN_API_KEY"},
		Envelope:     EnvelopeSpec{Kind: OpenAIChatArray},
		Mode: CompletionMode{
			Kind:     StreamingChunks,
			Framing:  FramingSSE,
			DoneData: "[DONE]",
		},
		Response: ResponseSpec{
			TextPath:  "choices.0.message.content",
			DeltaPath: "choices.0.delta.content",
		},
	},
	{
		ID:           "vertexai-claude",
		BaseURL:      "https://{location}-aiplatform.googleapis.com/v1/projects/{project}/locations/{location}/publishers/anthropic/models",
		ChatPath:     "/{model}:rawPredict",
		StreamPath:   "/{model}:streamRawPredict",
		DefaultModel: "claude-3-5-sonnet@20240620",
		Auth:         AuthTokenExchange{Source: "gcloud"},
		Envelope: EnvelopeSpec{
			Kind:      OpenAIChatArray,
			SystemTop: true,
			OmitModel: true,
		},
		Mode: CompletionMode{
			Kind:    StreamingChunks,
			Framing: FramingSSE,
		},
		Response: ResponseSpec{
			TextPath:  "content.0.text",
			DeltaPath: "delta.text",
		},
		ExtraBody: map[string]any{
			"anthropic_version": "vertex-2023-10-16",
			"max_tokens":        4096,
		},
		Vars: []URLVar{
			{Name: "project", EnvVar: "VERTEXAI_PROJECT_ID"},
			{Name: "location", EnvVar: "VERTEXAI_LOCATION"},
		},
	},
	{
		// Response streaming uses a binary event-stream framing this
		// dispatcher does not speak; sync only. stream=true downgrades
		// with a warning.
		ID:           "bedrock",
		BaseURL:      "https://bedrock-runtime.{region}.amazonaws.com",
		ChatPath:     "/model/{model}/invoke",
		DefaultModel: "anthropic.claude-3-5-sonnet-20240620-v1:0",
		Auth: AuthSigned{
			Service:   "bedrock",
			RegionEnv: "AWS_REGION",
			KeyEnv:    "AWS_ACCESS_KEY_ID",
			SecretEnv: "AWS_SECRET_ACCESS_KEY",
		},
		Envelope: EnvelopeSpec{
			Kind:           OpenAIChatArray,
			SystemTop:      true,
			OmitModel:      true,
			OmitStreamFlag: true,
		},
		Mode:     CompletionMode{Kind: SyncJSON},
		Response: ResponseSpec{TextPath: "content.0.text"},
		ExtraBody: map[string]any{
			"anthropic_version": "bedrock-2023-05-31",
			"max_tokens":        4096,
		},
		Vars: []URLVar{{Name: "region", EnvVar: "AWS_REGION"}},
	},
}
