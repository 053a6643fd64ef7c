// Package lorehound provides an embedded Go client for the lorehound RAG
// pipeline: scrape URLs into a tenant-partitioned vector store, then ask
// questions or request summaries over the indexed content, all in-process
// without running the HTTP server.
//
//	client, _ := lorehound.New(ctx,
//	    lorehound.WithSQLite("lore.db"),
//	    lorehound.WithOpenAI(os.Getenv("OPENAI_API_KEY")),
//	)
//	defer client.Close()
//
//	jobs, _ := client.Scrape(ctx, "default", []string{"https://go.dev/doc/faq"})
//	_ = client.WaitForJobs(ctx, "default", jobIDs(jobs), time.Minute)
//	answer, _ := client.Ask(ctx, "default", "What is a goroutine?")
//
// Storage backends: in-memory (default), sqlite, or postgres with pgvector.
// Any OpenAI-compatible endpoint works via WithBaseURL; custom providers
// plug in through WithEmbedder and WithCompleter.
package lorehound
