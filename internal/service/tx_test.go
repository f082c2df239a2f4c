package service

import "context"

type testTxRepos struct {
	documents     DocumentRepositoryInterface
	ingestJobs    IngestJobRepositoryInterface
	conversations ConversationRepositoryInterface
}

func (t *testTxRepos) Documents() DocumentRepositoryInterface {
	return t.documents
}

func (t *testTxRepos) IngestJobs() IngestJobRepositoryInterface {
	return t.ingestJobs
}

func (t *testTxRepos) Conversations() ConversationRepositoryInterface {
	return t.conversations
}

type testTxRunner struct {
	repos  TxRepositories
	called bool
}

func (t *testTxRunner) WithTx(ctx context.Context, fn func(repos TxRepositories) error) error {
	t.called = true
	return fn(t.repos)
}
