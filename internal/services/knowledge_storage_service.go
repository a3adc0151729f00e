package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"lorehub/internal/crypto"
	"lorehub/internal/database"
	"lorehub/internal/models"
	"lorehub/internal/synthesis"
)

// KnowledgeStorageService persists content units and the derived knowledge
// base (facts, decisions, risks, questions, actions, people, relationships)
// in MongoDB. It implements synthesis.Store for the pipeline and adds the
// ingestion, listing, and lifecycle operations the HTTP layer needs.
//
// When an encryption service is configured, raw content bodies are encrypted
// at rest with per-project keys. Derived knowledge rows stay plaintext.
type KnowledgeStorageService struct {
	mongodb    *database.MongoDB
	units      *mongo.Collection
	records    *mongo.Collection
	facts      *mongo.Collection
	decisions  *mongo.Collection
	risks      *mongo.Collection
	questions  *mongo.Collection
	actions    *mongo.Collection
	people     *mongo.Collection
	relations  *mongo.Collection
	encryption *crypto.EncryptionService // nil disables at-rest encryption
}

var _ synthesis.Store = (*KnowledgeStorageService)(nil)

// KnowledgeCounts summarizes a project's knowledge base for overview views.
type KnowledgeCounts struct {
	ContentUnits   int64 `json:"content_units"`
	Facts          int64 `json:"facts"`
	Decisions      int64 `json:"decisions"`
	Risks          int64 `json:"risks"`
	OpenQuestions  int64 `json:"open_questions"`
	PendingActions int64 `json:"pending_actions"`
	People         int64 `json:"people"`
	Relationships  int64 `json:"relationships"`
}

// NewKnowledgeStorageService creates a new knowledge storage service.
// encryption may be nil, in which case content bodies are stored as-is.
func NewKnowledgeStorageService(mongodb *database.MongoDB, encryption *crypto.EncryptionService) *KnowledgeStorageService {
	return &KnowledgeStorageService{
		mongodb:    mongodb,
		units:      mongodb.Collection(database.CollectionContentUnits),
		records:    mongodb.Collection(database.CollectionSynthesisRecords),
		facts:      mongodb.Collection(database.CollectionFacts),
		decisions:  mongodb.Collection(database.CollectionDecisions),
		risks:      mongodb.Collection(database.CollectionRisks),
		questions:  mongodb.Collection(database.CollectionQuestions),
		actions:    mongodb.Collection(database.CollectionActionItems),
		people:     mongodb.Collection(database.CollectionPeople),
		relations:  mongodb.Collection(database.CollectionRelationships),
		encryption: encryption,
	}
}

// --- Content units ---

// UpsertContentUnit inserts a content unit or, when a unit with the same
// name already exists in the project, replaces its body and metadata. A body
// change clears the stored summary so the backfill pass regenerates it.
// Returns the stored unit (body decrypted) and whether it was newly created.
func (s *KnowledgeStorageService) UpsertContentUnit(ctx context.Context, unit *models.ContentUnit) (*models.ContentUnit, bool, error) {
	if unit.ProjectID == "" {
		return nil, false, fmt.Errorf("project ID is required")
	}
	if unit.Name == "" {
		return nil, false, fmt.Errorf("content unit name is required")
	}
	if unit.ContentHash == "" {
		unit.ContentHash = models.HashContent(unit.Body)
	}
	if unit.WordCount == 0 {
		unit.WordCount = models.CountWords(unit.Body)
	}
	if unit.Kind == "" {
		unit.Kind = models.ContentKindDocument
	}

	var existing models.ContentUnit
	err := s.units.FindOne(ctx, bson.M{"projectId": unit.ProjectID, "name": unit.Name}).Decode(&existing)
	created := err == mongo.ErrNoDocuments
	if err != nil && err != mongo.ErrNoDocuments {
		return nil, false, fmt.Errorf("failed to look up content unit: %w", err)
	}

	now := time.Now()
	set := bson.M{
		"kind":        unit.Kind,
		"contentHash": unit.ContentHash,
		"wordCount":   unit.WordCount,
		"updatedAt":   now,
	}
	unset := bson.M{}
	if unit.SourceURL != "" {
		set["sourceUrl"] = unit.SourceURL
	}
	if s.encryption != nil {
		sealed, err := s.encryption.EncryptString(unit.ProjectID, unit.Body)
		if err != nil {
			return nil, false, fmt.Errorf("failed to encrypt content body: %w", err)
		}
		set["encryptedBody"] = sealed
		unset["body"] = ""
	} else {
		set["body"] = unit.Body
		unset["encryptedBody"] = ""
	}
	if !created && existing.ContentHash != unit.ContentHash {
		// Stale summary, regenerated by the next backfill pass.
		unset["summaryTitle"] = ""
		unset["summary"] = ""
	}

	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"projectId": unit.ProjectID, "name": unit.Name, "createdAt": now},
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	result := s.units.FindOneAndUpdate(
		ctx,
		bson.M{"projectId": unit.ProjectID, "name": unit.Name},
		update,
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	)

	var stored models.ContentUnit
	if err := result.Decode(&stored); err != nil {
		return nil, false, fmt.Errorf("failed to upsert content unit: %w", err)
	}
	s.openUnitBody(&stored)

	if created {
		log.Printf("✅ [KNOWLEDGE] Created content unit %q (project: %s, kind: %s, %d words)", stored.Name, stored.ProjectID, stored.Kind, stored.WordCount)
	} else {
		log.Printf("🔄 [KNOWLEDGE] Updated content unit %q (project: %s, changed: %t)", stored.Name, stored.ProjectID, existing.ContentHash != unit.ContentHash)
	}
	return &stored, created, nil
}

// ContentUnits returns all content units of a project, newest update first,
// with bodies decrypted. Units whose body cannot be decrypted are returned
// with an empty body rather than failing the whole listing.
func (s *KnowledgeStorageService) ContentUnits(ctx context.Context, projectID string) ([]models.ContentUnit, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project ID is required")
	}

	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}})
	cursor, err := s.units.Find(ctx, bson.M{"projectId": projectID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query content units: %w", err)
	}
	defer cursor.Close(ctx)

	var units []models.ContentUnit
	if err := cursor.All(ctx, &units); err != nil {
		return nil, fmt.Errorf("failed to decode content units: %w", err)
	}
	for i := range units {
		s.openUnitBody(&units[i])
	}
	return units, nil
}

// ContentUnitsMeta returns a project's content units without their bodies,
// for listing views that only need metadata.
func (s *KnowledgeStorageService) ContentUnitsMeta(ctx context.Context, projectID string) ([]models.ContentUnit, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project ID is required")
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "updatedAt", Value: -1}}).
		SetProjection(bson.M{"body": 0, "encryptedBody": 0})
	cursor, err := s.units.Find(ctx, bson.M{"projectId": projectID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query content units: %w", err)
	}
	defer cursor.Close(ctx)

	var units []models.ContentUnit
	if err := cursor.All(ctx, &units); err != nil {
		return nil, fmt.Errorf("failed to decode content units: %w", err)
	}
	return units, nil
}

// ContentUnitBySourceURL returns the unit previously ingested from a URL,
// or nil when the project has none. Used so a re-scrape updates the same
// unit even when the page title changed.
func (s *KnowledgeStorageService) ContentUnitBySourceURL(ctx context.Context, projectID, sourceURL string) (*models.ContentUnit, error) {
	if projectID == "" || sourceURL == "" {
		return nil, nil
	}

	var unit models.ContentUnit
	err := s.units.FindOne(ctx, bson.M{"projectId": projectID, "sourceUrl": sourceURL}).Decode(&unit)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query content unit by source URL: %w", err)
	}
	s.openUnitBody(&unit)
	return &unit, nil
}

// ContentUnit returns a single content unit by ID with its body decrypted.
func (s *KnowledgeStorageService) ContentUnit(ctx context.Context, projectID, unitID string) (*models.ContentUnit, error) {
	oid, err := primitive.ObjectIDFromHex(unitID)
	if err != nil {
		return nil, fmt.Errorf("invalid content unit ID: %w", err)
	}

	var unit models.ContentUnit
	err = s.units.FindOne(ctx, bson.M{"_id": oid, "projectId": projectID}).Decode(&unit)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("content unit not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query content unit: %w", err)
	}
	s.openUnitBody(&unit)
	return &unit, nil
}

// DeleteContentUnit removes a content unit and its synthesis record.
func (s *KnowledgeStorageService) DeleteContentUnit(ctx context.Context, projectID, unitID string) error {
	oid, err := primitive.ObjectIDFromHex(unitID)
	if err != nil {
		return fmt.Errorf("invalid content unit ID: %w", err)
	}

	result, err := s.units.DeleteOne(ctx, bson.M{"_id": oid, "projectId": projectID})
	if err != nil {
		return fmt.Errorf("failed to delete content unit: %w", err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("content unit not found")
	}

	if _, err := s.records.DeleteOne(ctx, bson.M{"projectId": projectID, "contentUnitId": unitID}); err != nil {
		log.Printf("⚠️ [KNOWLEDGE] Failed to delete synthesis record for unit %s: %v", unitID, err)
	}

	log.Printf("🗑️ [KNOWLEDGE] Deleted content unit %s (project: %s)", unitID, projectID)
	return nil
}

// --- Synthesis records ---

// SynthesisRecords returns the per-unit synthesis markers of a project.
func (s *KnowledgeStorageService) SynthesisRecords(ctx context.Context, projectID string) ([]models.SynthesisRecord, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project ID is required")
	}

	cursor, err := s.records.Find(ctx, bson.M{"projectId": projectID})
	if err != nil {
		return nil, fmt.Errorf("failed to query synthesis records: %w", err)
	}
	defer cursor.Close(ctx)

	var records []models.SynthesisRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode synthesis records: %w", err)
	}
	return records, nil
}

// UpsertSynthesisRecords marks units as synthesized at their current hash,
// one upsert per record keyed by (project, content unit).
func (s *KnowledgeStorageService) UpsertSynthesisRecords(ctx context.Context, projectID string, records []models.SynthesisRecord) error {
	if projectID == "" {
		return fmt.Errorf("project ID is required")
	}

	for _, record := range records {
		if record.ContentUnitID == "" {
			continue
		}
		synthesizedAt := record.SynthesizedAt
		if synthesizedAt.IsZero() {
			synthesizedAt = time.Now()
		}
		update := bson.M{
			"$set": bson.M{
				"lastSynthesizedHash": record.LastSynthesizedHash,
				"synthesizedAt":       synthesizedAt,
			},
			"$setOnInsert": bson.M{
				"projectId":     projectID,
				"contentUnitId": record.ContentUnitID,
			},
		}
		_, err := s.records.UpdateOne(
			ctx,
			bson.M{"projectId": projectID, "contentUnitId": record.ContentUnitID},
			update,
			options.Update().SetUpsert(true),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert synthesis record for unit %s: %w", record.ContentUnitID, err)
		}
	}
	return nil
}

// DeleteSynthesisRecords drops all synthesis markers of a project, forcing
// the next run to treat every unit as new.
func (s *KnowledgeStorageService) DeleteSynthesisRecords(ctx context.Context, projectID string) error {
	if projectID == "" {
		return fmt.Errorf("project ID is required")
	}

	result, err := s.records.DeleteMany(ctx, bson.M{"projectId": projectID})
	if err != nil {
		return fmt.Errorf("failed to delete synthesis records: %w", err)
	}
	log.Printf("🗑️ [KNOWLEDGE] Deleted %d synthesis records (project: %s)", result.DeletedCount, projectID)
	return nil
}

// --- Facts ---

// RecentFacts returns a project's facts newest first, capped at limit
// (limit <= 0 means no cap).
func (s *KnowledgeStorageService) RecentFacts(ctx context.Context, projectID string, limit int) ([]models.Fact, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project ID is required")
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := s.facts.Find(ctx, bson.M{"projectId": projectID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query facts: %w", err)
	}
	defer cursor.Close(ctx)

	var facts []models.Fact
	if err := cursor.All(ctx, &facts); err != nil {
		return nil, fmt.Errorf("failed to decode facts: %w", err)
	}
	return facts, nil
}

// AddFact inserts a new fact.
func (s *KnowledgeStorageService) AddFact(ctx context.Context, fact *models.Fact) error {
	if fact.ProjectID == "" {
		return fmt.Errorf("project ID is required")
	}
	if fact.Content == "" {
		return fmt.Errorf("fact content is required")
	}
	if fact.ID.IsZero() {
		fact.ID = primitive.NewObjectID()
	}
	if fact.CreatedAt.IsZero() {
		fact.CreatedAt = time.Now()
	}

	if _, err := s.facts.InsertOne(ctx, fact); err != nil {
		return fmt.Errorf("failed to insert fact: %w", err)
	}
	return nil
}

// --- Questions ---

// PendingQuestions returns a project's open questions (pending and
// assigned), oldest first, capped at limit (limit <= 0 means no cap).
func (s *KnowledgeStorageService) PendingQuestions(ctx context.Context, projectID string, limit int) ([]models.Question, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project ID is required")
	}

	filter := bson.M{
		"projectId": projectID,
		"status":    bson.M{"$in": []string{models.QuestionStatusPending, models.QuestionStatusAssigned}},
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := s.questions.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query questions: %w", err)
	}
	defer cursor.Close(ctx)

	var questions []models.Question
	if err := cursor.All(ctx, &questions); err != nil {
		return nil, fmt.Errorf("failed to decode questions: %w", err)
	}
	return questions, nil
}

// Questions returns a project's questions newest first, optionally filtered
// by status, capped at limit (limit <= 0 means no cap).
func (s *KnowledgeStorageService) Questions(ctx context.Context, projectID, status string, limit int) ([]models.Question, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project ID is required")
	}

	filter := bson.M{"projectId": projectID}
	if status != "" {
		filter["status"] = status
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := s.questions.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query questions: %w", err)
	}
	defer cursor.Close(ctx)

	var questions []models.Question
	if err := cursor.All(ctx, &questions); err != nil {
		return nil, fmt.Errorf("failed to decode questions: %w", err)
	}
	return questions, nil
}

// AddQuestion inserts a new question, defaulting its status to pending.
func (s *KnowledgeStorageService) AddQuestion(ctx context.Context, question *models.Question) error {
	if question.ProjectID == "" {
		return fmt.Errorf("project ID is required")
	}
	if question.Content == "" {
		return fmt.Errorf("question content is required")
	}
	if question.ID.IsZero() {
		question.ID = primitive.NewObjectID()
	}
	if question.Status == "" {
		question.Status = models.QuestionStatusPending
	}
	if question.CreatedAt.IsZero() {
		question.CreatedAt = time.Now()
	}

	if _, err := s.questions.InsertOne(ctx, question); err != nil {
		return fmt.Errorf("failed to insert question: %w", err)
	}
	return nil
}

// ResolveQuestion records an answer on an open question and marks it
// resolved. Questions already in a terminal state are left untouched and an
// error is returned.
func (s *KnowledgeStorageService) ResolveQuestion(ctx context.Context, projectID, questionID, answer, answerSource string) error {
	oid, err := primitive.ObjectIDFromHex(questionID)
	if err != nil {
		return fmt.Errorf("invalid question ID: %w", err)
	}

	filter := bson.M{
		"_id":       oid,
		"projectId": projectID,
		"status":    bson.M{"$in": []string{models.QuestionStatusPending, models.QuestionStatusAssigned}},
	}
	update := bson.M{
		"$set": bson.M{
			"status":       models.QuestionStatusResolved,
			"answer":       answer,
			"answerSource": answerSource,
			"resolvedAt":   time.Now(),
		},
	}

	result, err := s.questions.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to resolve question: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("question %s not found or already closed", questionID)
	}

	log.Printf("✅ [KNOWLEDGE] Resolved question %s (project: %s, source: %s)", questionID, projectID, answerSource)
	return nil
}

// AssignQuestion marks an open question as assigned to someone. Questions
// already in a terminal state are left untouched and an error is returned.
func (s *KnowledgeStorageService) AssignQuestion(ctx context.Context, projectID, questionID, assignee string) error {
	oid, err := primitive.ObjectIDFromHex(questionID)
	if err != nil {
		return fmt.Errorf("invalid question ID: %w", err)
	}
	if assignee == "" {
		return fmt.Errorf("assignee is required")
	}

	filter := bson.M{
		"_id":       oid,
		"projectId": projectID,
		"status":    bson.M{"$in": []string{models.QuestionStatusPending, models.QuestionStatusAssigned}},
	}
	update := bson.M{
		"$set": bson.M{
			"status":     models.QuestionStatusAssigned,
			"assignedTo": assignee,
		},
	}

	result, err := s.questions.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to assign question: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("question %s not found or already closed", questionID)
	}

	log.Printf("👤 [KNOWLEDGE] Assigned question %s to %s (project: %s)", questionID, assignee, projectID)
	return nil
}

// DismissQuestion closes an open question without an answer.
func (s *KnowledgeStorageService) DismissQuestion(ctx context.Context, projectID, questionID string) error {
	oid, err := primitive.ObjectIDFromHex(questionID)
	if err != nil {
		return fmt.Errorf("invalid question ID: %w", err)
	}

	filter := bson.M{
		"_id":       oid,
		"projectId": projectID,
		"status":    bson.M{"$in": []string{models.QuestionStatusPending, models.QuestionStatusAssigned}},
	}
	update := bson.M{
		"$set": bson.M{
			"status":     models.QuestionStatusDismissed,
			"resolvedAt": time.Now(),
		},
	}

	result, err := s.questions.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to dismiss question: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("question %s not found or already closed", questionID)
	}

	log.Printf("🗑️ [KNOWLEDGE] Dismissed question %s (project: %s)", questionID, projectID)
	return nil
}

// --- Decisions ---

// RecentDecisions returns a project's decisions newest first, capped at
// limit (limit <= 0 means no cap).
func (s *KnowledgeStorageService) RecentDecisions(ctx context.Context, projectID string, limit int) ([]models.Decision, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project ID is required")
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := s.decisions.Find(ctx, bson.M{"projectId": projectID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer cursor.Close(ctx)

	var decisions []models.Decision
	if err := cursor.All(ctx, &decisions); err != nil {
		return nil, fmt.Errorf("failed to decode decisions: %w", err)
	}
	return decisions, nil
}

// AddDecision inserts a new decision.
func (s *KnowledgeStorageService) AddDecision(ctx context.Context, decision *models.Decision) error {
	if decision.ProjectID == "" {
		return fmt.Errorf("project ID is required")
	}
	if decision.Content == "" {
		return fmt.Errorf("decision content is required")
	}
	if decision.ID.IsZero() {
		decision.ID = primitive.NewObjectID()
	}
	if decision.CreatedAt.IsZero() {
		decision.CreatedAt = time.Now()
	}

	if _, err := s.decisions.InsertOne(ctx, decision); err != nil {
		return fmt.Errorf("failed to insert decision: %w", err)
	}
	return nil
}

// --- Risks ---

// RecentRisks returns a project's risks newest first, capped at limit
// (limit <= 0 means no cap).
func (s *KnowledgeStorageService) RecentRisks(ctx context.Context, projectID string, limit int) ([]models.Risk, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project ID is required")
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := s.risks.Find(ctx, bson.M{"projectId": projectID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query risks: %w", err)
	}
	defer cursor.Close(ctx)

	var risks []models.Risk
	if err := cursor.All(ctx, &risks); err != nil {
		return nil, fmt.Errorf("failed to decode risks: %w", err)
	}
	return risks, nil
}

// AddRisk inserts a new risk.
func (s *KnowledgeStorageService) AddRisk(ctx context.Context, risk *models.Risk) error {
	if risk.ProjectID == "" {
		return fmt.Errorf("project ID is required")
	}
	if risk.Content == "" {
		return fmt.Errorf("risk content is required")
	}
	if risk.ID.IsZero() {
		risk.ID = primitive.NewObjectID()
	}
	if risk.CreatedAt.IsZero() {
		risk.CreatedAt = time.Now()
	}

	if _, err := s.risks.InsertOne(ctx, risk); err != nil {
		return fmt.Errorf("failed to insert risk: %w", err)
	}
	return nil
}

// --- People and relationships ---

// People returns everyone known to a project, sorted by name.
func (s *KnowledgeStorageService) People(ctx context.Context, projectID string) ([]models.Person, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project ID is required")
	}

	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	cursor, err := s.people.Find(ctx, bson.M{"projectId": projectID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query people: %w", err)
	}
	defer cursor.Close(ctx)

	var people []models.Person
	if err := cursor.All(ctx, &people); err != nil {
		return nil, fmt.Errorf("failed to decode people: %w", err)
	}
	return people, nil
}

// AddPerson inserts a new person.
func (s *KnowledgeStorageService) AddPerson(ctx context.Context, person *models.Person) error {
	if person.ProjectID == "" {
		return fmt.Errorf("project ID is required")
	}
	if person.Name == "" {
		return fmt.Errorf("person name is required")
	}
	if person.ID.IsZero() {
		person.ID = primitive.NewObjectID()
	}
	if person.CreatedAt.IsZero() {
		person.CreatedAt = time.Now()
	}

	if _, err := s.people.InsertOne(ctx, person); err != nil {
		return fmt.Errorf("failed to insert person: %w", err)
	}
	return nil
}

// Relationships returns a project's entity relationships, newest first.
func (s *KnowledgeStorageService) Relationships(ctx context.Context, projectID string) ([]models.Relationship, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project ID is required")
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := s.relations.Find(ctx, bson.M{"projectId": projectID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query relationships: %w", err)
	}
	defer cursor.Close(ctx)

	var relationships []models.Relationship
	if err := cursor.All(ctx, &relationships); err != nil {
		return nil, fmt.Errorf("failed to decode relationships: %w", err)
	}
	return relationships, nil
}

// AddRelationship inserts a new relationship.
func (s *KnowledgeStorageService) AddRelationship(ctx context.Context, rel *models.Relationship) error {
	if rel.ProjectID == "" {
		return fmt.Errorf("project ID is required")
	}
	if rel.Source == "" || rel.Target == "" {
		return fmt.Errorf("relationship source and target are required")
	}
	if rel.ID.IsZero() {
		rel.ID = primitive.NewObjectID()
	}
	if rel.CreatedAt.IsZero() {
		rel.CreatedAt = time.Now()
	}

	if _, err := s.relations.InsertOne(ctx, rel); err != nil {
		return fmt.Errorf("failed to insert relationship: %w", err)
	}
	return nil
}

// --- Action items ---

// PendingActions returns a project's pending action items, oldest first.
func (s *KnowledgeStorageService) PendingActions(ctx context.Context, projectID string) ([]models.ActionItem, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project ID is required")
	}

	filter := bson.M{"projectId": projectID, "status": models.ActionStatusPending}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cursor, err := s.actions.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query action items: %w", err)
	}
	defer cursor.Close(ctx)

	var actions []models.ActionItem
	if err := cursor.All(ctx, &actions); err != nil {
		return nil, fmt.Errorf("failed to decode action items: %w", err)
	}
	return actions, nil
}

// Actions returns a project's action items newest first, optionally
// filtered by status, capped at limit (limit <= 0 means no cap).
func (s *KnowledgeStorageService) Actions(ctx context.Context, projectID, status string, limit int) ([]models.ActionItem, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project ID is required")
	}

	filter := bson.M{"projectId": projectID}
	if status != "" {
		filter["status"] = status
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := s.actions.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query action items: %w", err)
	}
	defer cursor.Close(ctx)

	var actions []models.ActionItem
	if err := cursor.All(ctx, &actions); err != nil {
		return nil, fmt.Errorf("failed to decode action items: %w", err)
	}
	return actions, nil
}

// AddAction inserts a new action item, defaulting its status to pending.
func (s *KnowledgeStorageService) AddAction(ctx context.Context, action *models.ActionItem) error {
	if action.ProjectID == "" {
		return fmt.Errorf("project ID is required")
	}
	if action.Task == "" {
		return fmt.Errorf("action task is required")
	}
	if action.ID.IsZero() {
		action.ID = primitive.NewObjectID()
	}
	if action.Status == "" {
		action.Status = models.ActionStatusPending
	}
	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now()
	}

	if _, err := s.actions.InsertOne(ctx, action); err != nil {
		return fmt.Errorf("failed to insert action item: %w", err)
	}
	return nil
}

// CompleteAction marks a pending action item completed with an optional
// note. Actions already closed are left untouched and an error is returned.
func (s *KnowledgeStorageService) CompleteAction(ctx context.Context, projectID, actionID, note string) error {
	oid, err := primitive.ObjectIDFromHex(actionID)
	if err != nil {
		return fmt.Errorf("invalid action ID: %w", err)
	}

	filter := bson.M{
		"_id":       oid,
		"projectId": projectID,
		"status":    models.ActionStatusPending,
	}
	set := bson.M{
		"status":      models.ActionStatusCompleted,
		"completedAt": time.Now(),
	}
	if note != "" {
		set["completionNote"] = note
	}

	result, err := s.actions.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to complete action: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("action %s not found or already closed", actionID)
	}

	log.Printf("✅ [KNOWLEDGE] Completed action %s (project: %s)", actionID, projectID)
	return nil
}

// CancelAction marks a pending action item cancelled.
func (s *KnowledgeStorageService) CancelAction(ctx context.Context, projectID, actionID string) error {
	oid, err := primitive.ObjectIDFromHex(actionID)
	if err != nil {
		return fmt.Errorf("invalid action ID: %w", err)
	}

	filter := bson.M{
		"_id":       oid,
		"projectId": projectID,
		"status":    models.ActionStatusPending,
	}
	update := bson.M{
		"$set": bson.M{
			"status":      models.ActionStatusCancelled,
			"completedAt": time.Now(),
		},
	}

	result, err := s.actions.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to cancel action: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("action %s not found or already closed", actionID)
	}

	log.Printf("🗑️ [KNOWLEDGE] Cancelled action %s (project: %s)", actionID, projectID)
	return nil
}

// --- Summary backfill ---

// UnitsMissingSummary returns content units without a stored summary,
// oldest first, capped at limit (limit <= 0 means no cap). Bodies are
// decrypted since the caller feeds them to summary generation.
func (s *KnowledgeStorageService) UnitsMissingSummary(ctx context.Context, projectID string, limit int) ([]models.ContentUnit, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project ID is required")
	}

	filter := bson.M{
		"projectId": projectID,
		"$or": []bson.M{
			{"summary": bson.M{"$exists": false}},
			{"summary": ""},
		},
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := s.units.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query units missing summaries: %w", err)
	}
	defer cursor.Close(ctx)

	var units []models.ContentUnit
	if err := cursor.All(ctx, &units); err != nil {
		return nil, fmt.Errorf("failed to decode units: %w", err)
	}
	for i := range units {
		s.openUnitBody(&units[i])
	}
	return units, nil
}

// SetUnitSummary stores a generated title and summary on a content unit.
// The unit's updatedAt is left alone: a summary is derived metadata, not a
// content change.
func (s *KnowledgeStorageService) SetUnitSummary(ctx context.Context, projectID, unitID, title, summary string) error {
	oid, err := primitive.ObjectIDFromHex(unitID)
	if err != nil {
		return fmt.Errorf("invalid content unit ID: %w", err)
	}

	update := bson.M{
		"$set": bson.M{
			"summaryTitle": title,
			"summary":      summary,
		},
	}
	result, err := s.units.UpdateOne(ctx, bson.M{"_id": oid, "projectId": projectID}, update)
	if err != nil {
		return fmt.Errorf("failed to set unit summary: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("content unit not found")
	}
	return nil
}

// --- Aggregates ---

// Counts returns the size of each knowledge collection for a project.
func (s *KnowledgeStorageService) Counts(ctx context.Context, projectID string) (*KnowledgeCounts, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project ID is required")
	}

	byProject := bson.M{"projectId": projectID}
	counts := &KnowledgeCounts{}

	tallies := []struct {
		collection *mongo.Collection
		filter     bson.M
		dest       *int64
	}{
		{s.units, byProject, &counts.ContentUnits},
		{s.facts, byProject, &counts.Facts},
		{s.decisions, byProject, &counts.Decisions},
		{s.risks, byProject, &counts.Risks},
		{s.questions, bson.M{"projectId": projectID, "status": bson.M{"$in": []string{models.QuestionStatusPending, models.QuestionStatusAssigned}}}, &counts.OpenQuestions},
		{s.actions, bson.M{"projectId": projectID, "status": models.ActionStatusPending}, &counts.PendingActions},
		{s.people, byProject, &counts.People},
		{s.relations, byProject, &counts.Relationships},
	}
	for _, tally := range tallies {
		n, err := tally.collection.CountDocuments(ctx, tally.filter)
		if err != nil {
			return nil, fmt.Errorf("failed to count documents: %w", err)
		}
		*tally.dest = n
	}
	return counts, nil
}

// KnowledgeProjectIDs returns every distinct project ID that has documents
// in any knowledge collection. Used by the retention job to find data left
// behind by deleted projects.
func (s *KnowledgeStorageService) KnowledgeProjectIDs(ctx context.Context) ([]string, error) {
	collections := []*mongo.Collection{
		s.units, s.records, s.facts, s.decisions, s.risks,
		s.questions, s.actions, s.people, s.relations,
	}

	seen := make(map[string]struct{})
	for _, collection := range collections {
		results, err := collection.Distinct(ctx, "projectId", bson.M{})
		if err != nil {
			return nil, fmt.Errorf("failed to list project IDs in %s: %w", collection.Name(), err)
		}
		for _, result := range results {
			if projectID, ok := result.(string); ok && projectID != "" {
				seen[projectID] = struct{}{}
			}
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// PurgeProject removes everything stored for a project: content units,
// synthesis records, and all derived knowledge. Called on project deletion.
func (s *KnowledgeStorageService) PurgeProject(ctx context.Context, projectID string) error {
	if projectID == "" {
		return fmt.Errorf("project ID is required")
	}

	collections := []*mongo.Collection{
		s.units, s.records, s.facts, s.decisions, s.risks,
		s.questions, s.actions, s.people, s.relations,
	}
	var total int64
	for _, collection := range collections {
		result, err := collection.DeleteMany(ctx, bson.M{"projectId": projectID})
		if err != nil {
			return fmt.Errorf("failed to purge %s: %w", collection.Name(), err)
		}
		total += result.DeletedCount
	}

	log.Printf("🗑️ [KNOWLEDGE] Purged project %s (%d documents removed)", projectID, total)
	return nil
}

// openUnitBody decrypts a unit's body in place. A decryption failure leaves
// the body empty and logs a warning rather than failing the read.
func (s *KnowledgeStorageService) openUnitBody(unit *models.ContentUnit) {
	if unit.EncryptedBody == "" || unit.Body != "" {
		return
	}
	if s.encryption == nil {
		log.Printf("⚠️ [KNOWLEDGE] Unit %s has an encrypted body but encryption is disabled", unit.ID.Hex())
		return
	}
	body, err := s.encryption.DecryptString(unit.ProjectID, unit.EncryptedBody)
	if err != nil {
		log.Printf("⚠️ [KNOWLEDGE] Failed to decrypt body of unit %s: %v", unit.ID.Hex(), err)
		return
	}
	unit.Body = body
	unit.EncryptedBody = ""
}
