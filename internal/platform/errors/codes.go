// Package errors provides structured, coded error handling for quest operations.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Quest errors
	CodeQuestNotFound         Code = "QUEST_NOT_FOUND"
	CodeQuestAlreadyActive    Code = "QUEST_ALREADY_ACTIVE"
	CodeQuestAlreadyCompleted Code = "QUEST_ALREADY_COMPLETED"
	CodeQuestNotRepeatable    Code = "QUEST_NOT_REPEATABLE"
	CodeQuestVerifyRejected   Code = "QUEST_VERIFY_REJECTED"
	CodeQuestNotEntered       Code = "QUEST_NOT_ENTERED"

	// Segment errors
	CodeSegmentOutOfRange     Code = "SEGMENT_OUT_OF_RANGE"
	CodeSegmentInvalidAmount  Code = "SEGMENT_INVALID_AMOUNT"
	CodeSegmentHandlerFailure Code = "SEGMENT_HANDLER_FAILURE"

	// Participant errors
	CodeParticipantEmptyID Code = "PARTICIPANT_EMPTY_ID"

	// Session errors
	CodeSessionNotReady Code = "SESSION_NOT_READY"

	// Catalog errors
	CodeCatalogEmptyQuestName      Code = "CATALOG_EMPTY_QUEST_NAME"
	CodeCatalogDuplicateQuest      Code = "CATALOG_DUPLICATE_QUEST"
	CodeCatalogNoSegments          Code = "CATALOG_NO_SEGMENTS"
	CodeCatalogInvalidRequirement  Code = "CATALOG_INVALID_REQUIREMENT"
	CodeCatalogUnknownHandlerQuest Code = "CATALOG_UNKNOWN_HANDLER_QUEST"

	// Storage errors
	CodeNotFound     Code = "NOT_FOUND"
	CodeStoreFailure Code = "STORE_FAILURE"

	// Replication errors
	CodeViewerNotConnected Code = "VIEWER_NOT_CONNECTED"
)

// HTTPStatus maps domain codes to HTTP status codes for the transport surface.
func (c Code) HTTPStatus() int {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeParticipantEmptyID,
		CodeSegmentInvalidAmount,
		CodeCatalogEmptyQuestName,
		CodeCatalogNoSegments,
		CodeCatalogInvalidRequirement:
		return http.StatusBadRequest

	// FailedPrecondition - state doesn't allow operation
	case CodeQuestAlreadyActive,
		CodeQuestAlreadyCompleted,
		CodeQuestNotRepeatable,
		CodeQuestVerifyRejected,
		CodeQuestNotEntered,
		CodeSegmentOutOfRange,
		CodeCatalogDuplicateQuest:
		return http.StatusConflict

	// NotFound - resource doesn't exist
	case CodeQuestNotFound,
		CodeNotFound,
		CodeViewerNotConnected,
		CodeCatalogUnknownHandlerQuest:
		return http.StatusNotFound

	// Readiness not reached in time
	case CodeSessionNotReady:
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}
