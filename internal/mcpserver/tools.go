package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the SocialBets MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolGetBet = mcp.NewTool("get_bet",
	mcp.WithDescription(
		"Look up a live SocialBets bet by id. Shows the parties, mediator, stakes in ETH, "+
			"the current state, recorded votes and the next deadline. "+
			"Resolved or cancelled bets are deleted and return not found."),
	mcp.WithString("bet_id",
		mcp.Required(),
		mcp.Description("The bet id: 0x followed by 64 hex characters")),
)

var ToolListActiveBets = mcp.NewTool("list_active_bets",
	mcp.WithDescription(
		"List the ids of live bets an address takes part in, by role. "+
			"Defaults to your own address."),
	mcp.WithString("role",
		mcp.Required(),
		mcp.Description("Role of the address in the bet"),
		mcp.Enum("first-party", "second-party", "mediator")),
	mcp.WithString("address",
		mcp.Description("Address to list bets for (defaults to your address)")),
)

var ToolListDueBets = mcp.NewTool("list_due_bets",
	mcp.WithDescription(
		"List bets whose waiting period has ended and that anyone may crank with crank_bet."),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of bets to return (default 20)")),
)

var ToolQuoteFee = mcp.NewTool("quote_fee",
	mcp.WithDescription(
		"Quote the platform fee for a bet and the total the first party must send. "+
			"Amounts are in ETH."),
	mcp.WithString("first_stake",
		mcp.Required(),
		mcp.Description("First party stake in ETH (e.g. '0.5')")),
	mcp.WithString("second_stake",
		mcp.Required(),
		mcp.Description("Second party stake in ETH (e.g. '1.5')")),
)

var ToolCheckBalance = mcp.NewTool("check_balance",
	mcp.WithDescription(
		"Check an address's available ETH balance on SocialBets. Defaults to your own address."),
	mcp.WithString("address",
		mcp.Description("Address to check (defaults to your address)")),
)

var ToolJoinBet = mcp.NewTool("join_bet",
	mcp.WithDescription(
		"Join an open bet as the second party, locking its second stake from your balance. "+
			"If the join window has passed the bet is cancelled and refunded instead."),
	mcp.WithString("bet_id",
		mcp.Required(),
		mcp.Description("The bet id to join")),
)

var ToolVote = mcp.NewTool("vote",
	mcp.WithDescription(
		"Vote on the outcome of a bet you are a party to. Matching votes settle the bet; "+
			"different votes send it to the mediator."),
	mcp.WithString("bet_id",
		mcp.Required(),
		mcp.Description("The bet id")),
	mcp.WithString("answer",
		mcp.Required(),
		mcp.Description("Outcome you observed"),
		mcp.Enum("first_party_wins", "second_party_wins", "tie")),
)

var ToolMediate = mcp.NewTool("mediate",
	mcp.WithDescription(
		"Decide an escalated bet as its mediator. You earn the mediator fee."),
	mcp.WithString("bet_id",
		mcp.Required(),
		mcp.Description("The bet id")),
	mcp.WithString("answer",
		mcp.Required(),
		mcp.Description("Outcome you decide"),
		mcp.Enum("first_party_wins", "second_party_wins", "tie")),
)

var ToolCrankBet = mcp.NewTool("crank_bet",
	mcp.WithDescription(
		"Resolve a bet whose waiting period has ended. Picks the right timeout handler "+
			"from the bet's state. Anyone may call it."),
	mcp.WithString("bet_id",
		mcp.Required(),
		mcp.Description("The bet id")),
)

var ToolCalculateBetID = mcp.NewTool("calculate_bet_id",
	mcp.WithDescription(
		"Compute the id a bet with these terms gets, without contacting the server. "+
			"Identical terms give the same id, so this also tells you whether an offer "+
			"would collide with an open bet."),
	mcp.WithString("metadata",
		mcp.Description("Free-form terms of the bet")),
	mcp.WithString("first_party",
		mcp.Description("First party address (defaults to your address)")),
	mcp.WithString("first_stake",
		mcp.Required(),
		mcp.Description("First party stake in ETH")),
	mcp.WithString("second_stake",
		mcp.Required(),
		mcp.Description("Second party stake in ETH")),
	mcp.WithString("join_deadline",
		mcp.Required(),
		mcp.Description("Second party join deadline, RFC 3339 or unix seconds")),
	mcp.WithString("result_deadline",
		mcp.Required(),
		mcp.Description("Result deadline, RFC 3339 or unix seconds")),
)
