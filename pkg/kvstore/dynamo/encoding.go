package dynamo

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/zipcase/zipcase/pkg/kvstore"
)

// Item attribute layout:
//
//	Attribute   Type   Contents
//	=========================================================
//	PK          S      Partition key (e.g. "CASE#22CR714844-590")
//	SK          S      Sort key (e.g. "SUMMARY")
//	ttl         N      Expiry as epoch seconds, absent = never
//	<rest>             Flattened document fields
const (
	attrPK  = "PK"
	attrSK  = "SK"
	attrTTL = "ttl"
)

// keyAttributes builds the key portion of an item.
func keyAttributes(key kvstore.Key) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrPK: &types.AttributeValueMemberS{Value: key.PK},
		attrSK: &types.AttributeValueMemberS{Value: key.SK},
	}
}

// encodeItem flattens a JSON document into item attributes alongside the
// key and optional expiry.
func encodeItem(key kvstore.Key, value []byte, expiresAt time.Time) (map[string]types.AttributeValue, error) {
	var doc map[string]any
	if err := json.Unmarshal(value, &doc); err != nil {
		return nil, fmt.Errorf("document must be a JSON object: %w", err)
	}

	item, err := attributevalue.MarshalMap(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}

	item[attrPK] = &types.AttributeValueMemberS{Value: key.PK}
	item[attrSK] = &types.AttributeValueMemberS{Value: key.SK}
	if !expiresAt.IsZero() {
		item[attrTTL] = &types.AttributeValueMemberN{Value: strconv.FormatInt(expiresAt.Unix(), 10)}
	}

	return item, nil
}

// decodeItem strips the key and expiry attributes and re-serializes the
// document. It returns the record's key (needed by BatchGet, whose
// responses are unordered) and a nil document when the item is past its
// ttl.
func decodeItem(item map[string]types.AttributeValue, now time.Time) (kvstore.Key, []byte, error) {
	var key kvstore.Key
	if pk, ok := item[attrPK].(*types.AttributeValueMemberS); ok {
		key.PK = pk.Value
	}
	if sk, ok := item[attrSK].(*types.AttributeValueMemberS); ok {
		key.SK = sk.Value
	}

	if n, ok := item[attrTTL].(*types.AttributeValueMemberN); ok {
		epoch, err := strconv.ParseInt(n.Value, 10, 64)
		if err != nil {
			return key, nil, fmt.Errorf("invalid ttl attribute %q: %w", n.Value, err)
		}
		if epoch <= now.Unix() {
			return key, nil, nil
		}
	}

	doc := make(map[string]types.AttributeValue, len(item))
	for name, attr := range item {
		if name == attrPK || name == attrSK || name == attrTTL {
			continue
		}
		doc[name] = attr
	}

	var plain map[string]any
	if err := attributevalue.UnmarshalMap(doc, &plain); err != nil {
		return key, nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}

	value, err := json.Marshal(plain)
	if err != nil {
		return key, nil, fmt.Errorf("failed to re-encode document: %w", err)
	}
	return key, value, nil
}
