package dialog

import (
	"context"

	"github.com/wnakano/luma-appointments-qa/graph"
)

// Node identifiers for the appointment-assistant dialogue.
const (
	nodeConversationManager     = "CONVERSATION_MANAGER"
	nodeQAAnswer                = "QA_ANSWER"
	nodeVerificationGate        = "VERIFICATION_GATE"
	nodeVerificationPatient     = "VERIFICATION_PATIENT"
	nodeVerificationAppointment = "VERIFICATION_APPOINTMENT"
	nodeActionRouter            = "ACTION_ROUTER"
	nodeListAppointments        = "LIST_APPOINTMENTS"
	nodeAskConfirmation         = "ASK_CONFIRMATION"
	nodeProcessConfirmation     = "PROCESS_CONFIRMATION"
	nodeClarification           = "CLARIFICATION"
	nodeActionResponse          = "ACTION_RESPONSE"
)

// Route values. Each source node writes exactly one of its declared
// values into State.Route; the executor fails loudly on anything
// else.
const (
	routeQA                      graph.Route = "QA"
	routeAppointment             graph.Route = "APPOINTMENT"
	routeUserVerification        graph.Route = "USER_VERIFICATION"
	routeAppointmentVerification graph.Route = "APPOINTMENT_VERIFICATION"
	routeVerified                graph.Route = "VERIFIED"
	routeNotVerified             graph.Route = "NOT_VERIFIED"
	routeWait                    graph.Route = "WAIT"
	routeList                    graph.Route = "LIST"
	routeConfirm                 graph.Route = "CONFIRM"
	routeCancel                  graph.Route = "CANCEL"
	routeConfirmed               graph.Route = "CONFIRMED"
	routeRejected                graph.Route = "REJECTED"
	routeUnclear                 graph.Route = "UNCLEAR"
)

// routeSelector reads the route the node just wrote.
func routeSelector(ctx context.Context, s State) (graph.Route, error) {
	return s.Route, nil
}

// buildGraph declares the dialogue topology. Every node that produces
// a user-facing message is an interrupt-after point, so each turn
// runs until the next reply and suspends awaiting the next inbound
// message.
func buildGraph(e *Engine) (*graph.Graph[State], error) {
	sg := graph.NewStateGraph[State]()

	sg.AddNode(nodeConversationManager, e.conversationManager,
		graph.WithDescription[State]("classify intent and collect fields"))
	sg.AddNode(nodeQAAnswer, e.qaAnswer,
		graph.WithDescription[State]("answer a general question"))
	sg.AddNode(nodeVerificationGate, e.verificationGate,
		graph.WithDescription[State]("route to outstanding verification"))
	sg.AddNode(nodeVerificationPatient, e.verificationPatient,
		graph.WithDescription[State]("verify patient identity"))
	sg.AddNode(nodeVerificationAppointment, e.verificationAppointment,
		graph.WithDescription[State]("resolve the appointment"))
	sg.AddNode(nodeActionRouter, e.actionRouter,
		graph.WithDescription[State]("dispatch the verified request"))
	sg.AddNode(nodeListAppointments, e.listAppointments,
		graph.WithDescription[State]("render the appointment list"))
	sg.AddNode(nodeAskConfirmation, e.askConfirmation,
		graph.WithDescription[State]("pose the yes/no question"))
	sg.AddNode(nodeProcessConfirmation, e.processConfirmation,
		graph.WithDescription[State]("read the reply and apply the action"))
	sg.AddNode(nodeClarification, e.clarification,
		graph.WithDescription[State]("ask for missing details"))
	sg.AddNode(nodeActionResponse, e.actionResponse,
		graph.WithDescription[State]("render the outcome"))

	sg.SetEntryPoint(nodeConversationManager)

	sg.AddConditionalEdges(nodeConversationManager, routeSelector, map[graph.Route]string{
		routeQA:          nodeQAAnswer,
		routeAppointment: nodeVerificationGate,
	})
	sg.AddEdge(nodeQAAnswer, nodeConversationManager)
	sg.AddConditionalEdges(nodeVerificationGate, routeSelector, map[graph.Route]string{
		routeUserVerification:        nodeVerificationPatient,
		routeAppointmentVerification: nodeVerificationAppointment,
		routeVerified:                nodeActionRouter,
	})
	sg.AddConditionalEdges(nodeVerificationPatient, routeSelector, map[graph.Route]string{
		routeNotVerified: nodeClarification,
		routeVerified:    nodeVerificationAppointment,
	})
	sg.AddConditionalEdges(nodeVerificationAppointment, routeSelector, map[graph.Route]string{
		routeNotVerified: nodeClarification,
		routeVerified:    nodeActionRouter,
	})
	sg.AddConditionalEdges(nodeActionRouter, routeSelector, map[graph.Route]string{
		routeWait:    nodeClarification,
		routeList:    nodeListAppointments,
		routeConfirm: nodeAskConfirmation,
		routeCancel:  nodeAskConfirmation,
	})
	sg.AddEdge(nodeListAppointments, nodeActionResponse)
	sg.AddEdge(nodeAskConfirmation, nodeProcessConfirmation)
	sg.AddConditionalEdges(nodeProcessConfirmation, routeSelector, map[graph.Route]string{
		routeConfirmed: nodeActionResponse,
		routeRejected:  nodeActionResponse,
		routeUnclear:   nodeAskConfirmation,
	})
	sg.AddEdge(nodeClarification, nodeConversationManager)
	sg.AddEdge(nodeActionResponse, nodeConversationManager)

	sg.SetInterruptAfter(
		nodeQAAnswer,
		nodeClarification,
		nodeAskConfirmation,
		nodeActionResponse,
	)

	return sg.Compile()
}
