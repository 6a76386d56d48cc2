package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/nfnt/resize"
	"github.com/redis/go-redis/v9"

	"github.com/230701390/feedr/internal/config"
	"github.com/230701390/feedr/internal/email"
	"github.com/230701390/feedr/internal/engine"
	"github.com/230701390/feedr/internal/models"
	"github.com/230701390/feedr/internal/storage"
)

// TaskType defines the type of a background task.
const (
	TypeClaimNotify  = "listing:claim:notify"
	TypeWelcomeEmail = "user:welcome:email"
	TypeImageProcess = "image:process"
	TypeExpiredPrune = "listing:expired:prune"
)

// --- Task Client (Enqueuing tasks) ---

func NewClient(rdb *redis.Client) *asynq.Client {
	clientOpt := asynq.RedisClientOpt{
		Addr: rdb.Options().Addr,
	}
	return asynq.NewClient(clientOpt)
}

// NewClaimNotifyTask builds the task enqueued after a successful claim.
func NewClaimNotifyTask(listingID, receiverID uuid.UUID) (*asynq.Task, error) {
	payload, err := json.Marshal(ClaimNotifyPayload{
		ListingID:  listingID.String(),
		ReceiverID: receiverID.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal claim notify payload: %w", err)
	}
	return asynq.NewTask(TypeClaimNotify, payload), nil
}

// NewWelcomeEmailTask builds the task enqueued after a successful registration.
func NewWelcomeEmailTask(userID uuid.UUID) (*asynq.Task, error) {
	payload, err := json.Marshal(WelcomeEmailPayload{UserID: userID.String()})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal welcome email payload: %w", err)
	}
	return asynq.NewTask(TypeWelcomeEmail, payload, asynq.Queue("low")), nil
}

// NewImageProcessTask builds the task enqueued once a donor finishes an
// image upload.
func NewImageProcessTask(s3Key string, listingID uuid.UUID) (*asynq.Task, error) {
	payload, err := json.Marshal(ImageTaskPayload{
		S3Key:     s3Key,
		ListingID: listingID.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal image task payload: %w", err)
	}
	return asynq.NewTask(TypeImageProcess, payload, asynq.Queue("images")), nil
}

// NewExpiredPruneTask builds the periodic cleanup task.
func NewExpiredPruneTask() *asynq.Task {
	return asynq.NewTask(TypeExpiredPrune, nil, asynq.Queue("low"))
}

// --- Task Server (Processing tasks) ---

// TaskProcessor handles the processing of tasks.
// It holds dependencies needed by task handlers.
type TaskProcessor struct {
	cfg            *config.Config
	emailSender    email.Sender
	engine         engine.IEngine
	storageService storage.IS3Storage
	s3Client       *s3.Client
}

func NewTaskProcessor(
	cfg *config.Config,
	emailSender email.Sender,
	eng engine.IEngine,
	storageService storage.IS3Storage,
	s3Client *s3.Client,
) *TaskProcessor {
	return &TaskProcessor{
		cfg:            cfg,
		emailSender:    emailSender,
		engine:         eng,
		storageService: storageService,
		s3Client:       s3Client,
	}
}

// SetupServer configures an Asynq server and its mux for the given worker
// modes. The caller runs srv.Run(mux). Returns nil, nil when neither worker
// mode is requested.
func SetupServer(rdb *redis.Client, processor *TaskProcessor, isImageWorker bool, isBgWorker bool) (*asynq.Server, *asynq.ServeMux) {
	serverOpt := asynq.RedisClientOpt{
		Addr: rdb.Options().Addr,
	}

	srv := asynq.NewServer(
		serverOpt,
		asynq.Config{
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
				"images":   5,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				fmt.Printf("[Asynq Error] Task Type: %s, Payload: %s, Error: %v\n", task.Type(), string(task.Payload()), err)
			}),
		},
	)

	mux := asynq.NewServeMux()

	if isBgWorker {
		mux.HandleFunc(TypeClaimNotify, processor.HandleClaimNotifyTask)
		mux.HandleFunc(TypeWelcomeEmail, processor.HandleWelcomeEmailTask)
		mux.HandleFunc(TypeExpiredPrune, processor.HandleExpiredPruneTask)
		fmt.Println("Registered background task handlers.")
	}

	if isImageWorker {
		mux.HandleFunc(TypeImageProcess, processor.HandleImageProcessTask)
		fmt.Println("Registered image processing task handlers.")
	}

	if !isBgWorker && !isImageWorker {
		fmt.Println("Running in API mode, no task server started.")
		return nil, nil
	}

	return srv, mux
}

// --- Task Handlers ---

// ClaimNotifyPayload carries the claim whose donor should be emailed.
type ClaimNotifyPayload struct {
	ListingID  string `json:"listing_id"`
	ReceiverID string `json:"receiver_id"`
}

// HandleClaimNotifyTask emails the donor that their listing has been claimed
// and by whom, so the handover can be arranged.
func (p *TaskProcessor) HandleClaimNotifyTask(ctx context.Context, t *asynq.Task) error {
	var payload ClaimNotifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal claim notify payload: %v: %w", err, asynq.SkipRetry)
	}

	listingID, err := uuid.Parse(payload.ListingID)
	if err != nil {
		return fmt.Errorf("invalid listing ID in payload: %w", asynq.SkipRetry)
	}
	receiverID, err := uuid.Parse(payload.ReceiverID)
	if err != nil {
		return fmt.Errorf("invalid receiver ID in payload: %w", asynq.SkipRetry)
	}

	listings, err := p.engine.Listings(ctx)
	if err != nil {
		return err
	}
	var listing *models.FoodListing
	for i := range listings {
		if listings[i].ID == listingID {
			listing = &listings[i]
			break
		}
	}
	if listing == nil {
		// The donor may have deleted the listing between claim and notify.
		return fmt.Errorf("listing %s gone before notification: %w", payload.ListingID, asynq.SkipRetry)
	}

	users, err := p.engine.Users(ctx)
	if err != nil {
		return err
	}
	var donorEmail, receiverName, receiverMobile string
	for _, u := range users {
		if u.ID == listing.DonorID {
			donorEmail = u.Email
		}
		if u.ID == receiverID {
			receiverName = u.Name
			receiverMobile = u.Mobile
		}
	}
	if donorEmail == "" {
		return fmt.Errorf("donor for listing %s not found: %w", payload.ListingID, asynq.SkipRetry)
	}

	subject := fmt.Sprintf("Your listing %q has been claimed", listing.Name)
	body := fmt.Sprintf(
		"Hi %s,\r\n\r\n%s has claimed your listing %q on %s.\r\n",
		listing.DonorName, receiverName, listing.Name, p.cfg.AppName,
	)
	if receiverMobile != "" {
		body += fmt.Sprintf("You can reach them on %s to arrange the pickup.\r\n", receiverMobile)
	}

	rawMessage := p.buildRawMessage(donorEmail, subject, body)

	if err := p.emailSender.Send(ctx, []string{donorEmail}, subject, rawMessage); err != nil {
		fmt.Printf("Claim notification failed (will retry?): %v\n", err)
		return err
	}

	log.Printf("Claim notification sent: Listing=%s, To=%s", payload.ListingID, donorEmail)
	return nil
}

// WelcomeEmailPayload identifies the newly registered user to greet.
type WelcomeEmailPayload struct {
	UserID string `json:"user_id"`
}

// HandleWelcomeEmailTask emails a newly registered user.
func (p *TaskProcessor) HandleWelcomeEmailTask(ctx context.Context, t *asynq.Task) error {
	var payload WelcomeEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal welcome email payload: %v: %w", err, asynq.SkipRetry)
	}

	userID, err := uuid.Parse(payload.UserID)
	if err != nil {
		return fmt.Errorf("invalid user ID in payload: %w", asynq.SkipRetry)
	}

	users, err := p.engine.Users(ctx)
	if err != nil {
		return err
	}
	var user *models.User
	for i := range users {
		if users[i].ID == userID {
			user = &users[i]
			break
		}
	}
	if user == nil {
		return fmt.Errorf("user %s gone before welcome email: %w", payload.UserID, asynq.SkipRetry)
	}

	subject := fmt.Sprintf("Welcome to %s", p.cfg.AppName)
	body := fmt.Sprintf("Hi %s,\r\n\r\nThanks for joining %s.\r\n", user.Name, p.cfg.AppName)
	switch user.Role {
	case models.RoleDonor:
		body += "List your surplus food and earn points with every donation.\r\n"
	case models.RoleReceiver:
		body += "Browse listings near you and claim what you need.\r\n"
	}

	rawMessage := p.buildRawMessage(user.Email, subject, body)

	if err := p.emailSender.Send(ctx, []string{user.Email}, subject, rawMessage); err != nil {
		return err
	}

	log.Printf("Welcome email sent: User=%s, To=%s", payload.UserID, user.Email)
	return nil
}

// buildRawMessage assembles a plain-text RFC 822 message body for Send.
func (p *TaskProcessor) buildRawMessage(to, subject, body string) []byte {
	fromAddress := p.cfg.SmtpFromAddress
	if fromAddress == "" {
		fromAddress = "noreply@example.com"
		log.Printf("Warning: SmtpFromAddress not configured, using fallback %s for email to %s", fromAddress, to)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("To: %s\r\n", to))
	sb.WriteString(fmt.Sprintf("From: %s\r\n", fromAddress))
	sb.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	sb.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(body)
	sb.WriteString("\r\n")
	return []byte(sb.String())
}

// HandleImageProcessTask processes image normalization tasks.
type ImageTaskPayload struct {
	S3Key     string `json:"s3_key"`
	ListingID string `json:"listing_id"`
}

func (p *TaskProcessor) HandleImageProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload ImageTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal image task payload: %v: %w", err, asynq.SkipRetry)
	}

	listingID, err := uuid.Parse(payload.ListingID)
	if err != nil {
		log.Printf("Invalid ListingID in image task payload: %s", payload.ListingID)
		return fmt.Errorf("invalid listing ID in payload: %w", asynq.SkipRetry)
	}

	log.Printf("Processing image task: S3Key=%s, ListingID=%s\n", payload.S3Key, payload.ListingID)

	// 1. Download image from S3
	getObjectOutput, err := p.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.cfg.AwsS3Bucket),
		Key:    aws.String(payload.S3Key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			log.Printf("S3 object %s not found, likely upload failed or key incorrect.", payload.S3Key)
			return fmt.Errorf("s3 object not found: %w", asynq.SkipRetry)
		}
		return fmt.Errorf("failed to download image from S3: %w", err)
	}
	defer getObjectOutput.Body.Close()

	imgData, err := io.ReadAll(getObjectOutput.Body)
	if err != nil {
		return fmt.Errorf("failed to read image data: %w", err)
	}

	// Check size before decoding
	maxSizeBytes := int64(p.cfg.ImageMaxSizeMB) * 1024 * 1024
	if int64(len(imgData)) > maxSizeBytes {
		log.Printf("Image %s exceeds max size (%d > %d bytes). Skipping.", payload.S3Key, len(imgData), maxSizeBytes)
		return fmt.Errorf("image exceeds max size: %w", asynq.SkipRetry)
	}

	img, format, err := image.Decode(bytes.NewReader(imgData))
	if err != nil {
		return fmt.Errorf("unsupported image format or corrupt image: %w", asynq.SkipRetry)
	}
	log.Printf("Decoded image %s, format: %s, size: %dx%d", payload.S3Key, format, img.Bounds().Dx(), img.Bounds().Dy())

	// 2. Check dimensions
	maxWidth := uint(p.cfg.ImageMaxDimension)
	maxHeight := uint(p.cfg.ImageMaxDimension)
	needsResize := uint(img.Bounds().Dx()) > maxWidth || uint(img.Bounds().Dy()) > maxHeight

	processedImageKey := payload.S3Key
	var processedImageData []byte
	contentType := aws.ToString(getObjectOutput.ContentType)

	// 3. Resize if needed
	if needsResize {
		resizedImg := resize.Thumbnail(maxWidth, maxHeight, img, resize.Lanczos3)
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, resizedImg, &jpeg.Options{Quality: 85}); err != nil {
			return fmt.Errorf("failed to re-encode resized image: %w", err)
		}
		processedImageData = buf.Bytes()
		contentType = "image/jpeg"
		log.Printf("Resized image %s to %dx%d", payload.S3Key, resizedImg.Bounds().Dx(), resizedImg.Bounds().Dy())

		if int64(len(processedImageData)) > maxSizeBytes {
			return fmt.Errorf("resized image still exceeds max size: %w", asynq.SkipRetry)
		}
	} else {
		processedImageData = imgData
	}

	// 4. Upload processed image (overwrite original)
	_, err = p.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.cfg.AwsS3Bucket),
		Key:         aws.String(processedImageKey),
		Body:        bytes.NewReader(processedImageData),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload processed image: %w", err)
	}

	// 5. Point the listing at the processed image
	imageURL := p.storageService.ObjectURL(processedImageKey)
	if err := p.engine.UpdateListingImage(ctx, listingID, imageURL); err != nil {
		if engine.IsLifecycleError(err) {
			// Listing deleted while the image was in flight.
			return fmt.Errorf("listing gone: %v: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("failed to update listing with processed image: %w", err)
	}

	log.Printf("Image task processed successfully: Key=%s, ListingID=%s", processedImageKey, payload.ListingID)
	return nil
}

// HandleExpiredPruneTask removes unclaimed listings whose expiry passed the
// retention window. Runs periodically in bg mode.
func (p *TaskProcessor) HandleExpiredPruneTask(ctx context.Context, t *asynq.Task) error {
	retention := time.Duration(p.cfg.ExpiredRetentionHours) * time.Hour
	removed, err := p.engine.PruneExpired(ctx, retention)
	if err != nil {
		log.Printf("Expired listing prune failed: %v", err)
		return err
	}
	log.Printf("Expired listing prune finished. Removed %d listings.", removed)
	return nil
}
