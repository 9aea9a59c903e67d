package sqlinline

const QInsertGeneration = `--sql ef27ae38-3b68-4e1e-b195-925da34467a9
insert into generations (id, template_id, mode, provider, status, properties, created_at, updated_at)
values (gen_random_uuid(), $1::text, $2::text, $3::text, 'processing', coalesce($4::jsonb, '{}'::jsonb), now(), now())
returning id::text, template_id, mode, provider, status,
          coalesce(output_image_url, ''), coalesce(error_message, ''),
          properties, created_at, updated_at;
`

const QSelectGeneration = `--sql 5246f000-e223-459c-9ae4-6d71d9cfc3d1
select id::text, template_id, mode, provider, status,
       coalesce(output_image_url, ''), coalesce(error_message, ''),
       properties, created_at, updated_at
from generations
where id = $1::uuid;
`

// QTransitionGeneration only matches rows still processing; zero rows means the write was a no-op.
const QTransitionGeneration = `--sql 31fb38f1-3cdb-4f0b-8194-aad2aa8d2f82
update generations
set status = $2::text,
    output_image_url = nullif($3::text, ''),
    error_message = nullif($4::text, ''),
    updated_at = now()
where id = $1::uuid
  and status = 'processing'
returning id::text, template_id, mode, provider, status,
          coalesce(output_image_url, ''), coalesce(error_message, ''),
          properties, created_at, updated_at;
`

const QMergeGenerationProperties = `--sql 76dd2b65-f661-44a3-a2e7-9c7316641da9
update generations
set properties = coalesce(properties, '{}'::jsonb) || $2::jsonb
where id = $1::uuid;
`
